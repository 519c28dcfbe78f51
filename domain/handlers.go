// Package domain supplies a reference set of agent handlers illustrating
// the capability types named in spec.md's scope line - document OCR,
// policy lookup, fraud scoring, approval - plus the web-search/summarize
// pair original_source/main.py actually wires up as its own worked example,
// and a minimal echo/upper pair used for smoke-testing the fleet end to
// end. None of these are meant as production logic; each is a pure
// function over a task's fields wired as an orchestration.Handler.
package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/codec"
)

// Echo returns its single "text" field unchanged, under the key "text".
// cmd/driver's demo job uses it as the first step of a linear two-task job.
func Echo(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	return map[string]interface{}{"text": fields["text"]}, nil
}

// Upper upper-cases the "text" field. Paired with Echo for the simplest
// possible two-task chain: echo -> upper.
func Upper(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	return map[string]interface{}{"text": strings.ToUpper(fields["text"])}, nil
}

// simulatedLatency stands in for the network/LLM call original_source's
// web_search_agent.py and summarization_agent.py simulate with
// time.sleep(random.uniform(...)); this module uses a short fixed delay
// instead of a random one so handler behavior stays deterministic for
// tests and for the driver's own startup timeout.
const simulatedLatency = 20 * time.Millisecond

// WebSearch stands in for a real search-API call, matching
// original_source/agents/web_search_agent.py: it requires a "query" field
// and returns a single canned "content" string rather than performing any
// actual lookup.
func WebSearch(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	query := fields["query"]
	if query == "" {
		return nil, fmt.Errorf("web_search: query not provided")
	}
	time.Sleep(simulatedLatency)
	content := fmt.Sprintf("Search results for %q: The capital of France is Paris. Wikipedia also mentions Lyon and Marseille.", query)
	return map[string]interface{}{"content": content}, nil
}

// Summarize stands in for an LLM summarization call, matching
// original_source/agents/summarization_agent.py: it requires a "text"
// field and returns a single canned summary string.
func Summarize(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	text := fields["text"]
	if text == "" {
		return nil, fmt.Errorf("summarization: text not provided")
	}
	time.Sleep(simulatedLatency)
	return map[string]interface{}{"summary": "Summary: The main point of the text is that Paris is the capital of France."}, nil
}

// DocumentReader stands in for an OCR/extraction step: it reports the
// "document_id" it was asked to read plus a canned extracted field set,
// matching original_source/agents/document_reader_agent.py's extracted_data
// shape (patient/claimant name, total billed amount, policy id).
func DocumentReader(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	docID := fields["document_id"]
	if docID == "" {
		return nil, fmt.Errorf("document_reader: missing document_id")
	}
	return map[string]interface{}{
		"document_id":  docID,
		"total_billed": 4250.00,
		"claimant":     "J. Rivera",
		"policy_id":    fields["policy_id"],
	}, nil
}

// PolicyLookup renders a real coverage verdict the way
// original_source/agents/policy_check_agent.py does: a claim is "Covered"
// iff the named policy is active and the claim's total billed amount does
// not exceed the policy's post-hospital limit, both read out of the
// "policies" record SeedPolicies seeded. It is built with a broker so it
// can resolve that record, the same closure-over-a-dependency wiring style
// this package's neighboring test code uses for gov and broker references.
func PolicyLookup(b *broker.Broker) func(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	return func(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
		policyID := fields["policy_id"]
		if policyID == "" {
			return nil, fmt.Errorf("policy_lookup: missing policy_id")
		}
		totalBilled, err := strconv.ParseFloat(fields["total_billed"], 64)
		if err != nil {
			return nil, fmt.Errorf("policy_lookup: invalid total_billed %q: %w", fields["total_billed"], err)
		}

		record, ok, err := b.HGet(ctx, "policies", policyID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("policy_lookup: unknown policy_id %q", policyID)
		}

		parsed, err := codec.ParseDict(record)
		if err != nil {
			return nil, fmt.Errorf("policy_lookup: parse policy %s: %w", policyID, err)
		}
		isActiveVal, _ := parsed.Field("is_active")
		isActive, _ := isActiveVal.Interface().(bool)
		limitVal, _ := parsed.Field("post_hospital_limit")
		limit, _ := limitVal.Interface().(float64)

		isCovered := isActive && totalBilled <= limit
		verdict := "Not Covered"
		if isCovered {
			verdict = "Covered"
		}
		return map[string]interface{}{
			"policy_verdict": verdict,
			"coverage_limit": limit,
		}, nil
	}
}

// approvalFraudThreshold mirrors claim_approval_agent.py's 0.7 cutoff.
const approvalFraudThreshold = 0.7

// Approval renders the final claim decision the way
// original_source/agents/claim_approval_agent.py does: a three-way
// decision combining the policy coverage verdict (from PolicyLookup) with
// the fraud score (from FraudScorer), not fraud score alone.
func Approval(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	policyStatus := fields["policy_status"]
	fraudScore, _ := strconv.ParseFloat(fields["fraud_score"], 64)

	decision := "Rejected"
	switch {
	case policyStatus == "Covered" && fraudScore < approvalFraudThreshold:
		decision = "Approved"
	case policyStatus == "Covered" && fraudScore >= approvalFraudThreshold:
		decision = "Manual Review (High Fraud Score)"
	case policyStatus == "Not Covered":
		decision = "Rejected (Not Covered by Policy)"
	}

	return map[string]interface{}{
		"final_decision": decision,
		"reason":         fmt.Sprintf("Policy: %s, Fraud Score: %.2f", policyStatus, fraudScore),
	}, nil
}
