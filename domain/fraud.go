package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// FraudScorer calls an external scoring endpoint over an otelhttp-traced
// client. When Endpoint is empty, or the call fails, it falls
// back to a small deterministic local heuristic so the handler still
// works without a live scoring service configured. The score shape
// (a float in [0,1] plus an is_flagged bool derived from it) matches
// original_source/agents/fraud_detection_agent.py's _perform_task rather
// than an arbitrary low/medium/high label.
type FraudScorer struct {
	Endpoint   string
	httpClient *http.Client
}

// NewFraudScorer builds a FraudScorer. endpoint may be empty to use the
// local fallback heuristic.
func NewFraudScorer(endpoint string) *FraudScorer {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	return &FraudScorer{
		Endpoint: endpoint,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   10 * time.Second,
		},
	}
}

// fraudFlagThreshold mirrors claim_approval_agent.py's 0.7 cutoff between
// an auto-approvable score and one that routes to manual review.
const fraudFlagThreshold = 0.7

type scoreRequest struct {
	TotalBilled float64 `json:"total_billed"`
	Claimant    string  `json:"claimant"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// Handler returns this scorer's fraud_scoring orchestration.Handler.
func (f *FraudScorer) Handler(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	var totalBilled float64
	if _, err := fmt.Sscanf(fields["total_billed"], "%f", &totalBilled); err != nil {
		totalBilled = 0
	}

	if f.Endpoint == "" {
		return f.scoreResult(f.localHeuristic(totalBilled)), nil
	}

	reqBody, err := json.Marshal(scoreRequest{TotalBilled: totalBilled, Claimant: fields["claimant"]})
	if err != nil {
		return nil, fmt.Errorf("fraud_scoring: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("fraud_scoring: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return f.scoreResult(f.localHeuristic(totalBilled)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return f.scoreResult(f.localHeuristic(totalBilled)), nil
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return f.scoreResult(f.localHeuristic(totalBilled)), nil
	}
	return f.scoreResult(parsed.Score), nil
}

func (f *FraudScorer) scoreResult(score float64) map[string]interface{} {
	return map[string]interface{}{
		"fraud_score": fmt.Sprintf("%.2f", score),
		"is_flagged":  score > fraudFlagThreshold,
	}
}

// localHeuristic mirrors fraud_detection_agent.py's "simple fraud rule":
// flag a claim once its total billed amount crosses $1000.
func (f *FraudScorer) localHeuristic(totalBilled float64) float64 {
	if totalBilled > 1000 {
		return 0.85
	}
	return 0.15
}
