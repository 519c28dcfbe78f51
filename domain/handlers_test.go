package domain

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinny777/agentic-ai-system/broker"
)

func TestEchoAndUpper(t *testing.T) {
	ctx := context.Background()
	result, err := Echo(ctx, map[string]string{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result["text"])

	result, err = Upper(ctx, map[string]string{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "HI", result["text"])
}

func TestWebSearch_RequiresQuery(t *testing.T) {
	_, err := WebSearch(context.Background(), map[string]string{})
	require.Error(t, err)
}

func TestWebSearch_ReturnsContent(t *testing.T) {
	result, err := WebSearch(context.Background(), map[string]string{"query": "capital of France"})
	require.NoError(t, err)
	assert.Contains(t, result["content"], "capital of France")
}

func TestSummarize_RequiresText(t *testing.T) {
	_, err := Summarize(context.Background(), map[string]string{})
	require.Error(t, err)
}

func TestSummarize_ReturnsSummary(t *testing.T) {
	result, err := Summarize(context.Background(), map[string]string{"text": "some search results"})
	require.NoError(t, err)
	assert.Contains(t, result["summary"], "Summary:")
}

func TestDocumentReader_RequiresDocumentID(t *testing.T) {
	_, err := DocumentReader(context.Background(), map[string]string{})
	require.Error(t, err)
}

func TestDocumentReader_ReturnsExtractedFields(t *testing.T) {
	result, err := DocumentReader(context.Background(), map[string]string{"document_id": "doc-1", "policy_id": "POL-1001"})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", result["document_id"])
	assert.Equal(t, "POL-1001", result["policy_id"])
}

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b, err := broker.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	return b
}

func TestPolicyLookup_CoveredWhenActiveAndUnderLimit(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	require.NoError(t, SeedPolicies(ctx, b))

	handler := PolicyLookup(b)
	result, err := handler(ctx, map[string]string{"policy_id": "POL-1001", "total_billed": "1500"})
	require.NoError(t, err)
	assert.Equal(t, "Covered", result["policy_verdict"])
	assert.Equal(t, 5000.0, result["coverage_limit"])
}

func TestPolicyLookup_NotCoveredWhenOverLimit(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	require.NoError(t, SeedPolicies(ctx, b))

	handler := PolicyLookup(b)
	result, err := handler(ctx, map[string]string{"policy_id": "POL-1002", "total_billed": "9000"})
	require.NoError(t, err)
	assert.Equal(t, "Not Covered", result["policy_verdict"])
}

func TestPolicyLookup_NotCoveredWhenInactive(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	require.NoError(t, SeedPolicies(ctx, b))

	handler := PolicyLookup(b)
	result, err := handler(ctx, map[string]string{"policy_id": "POL-1003", "total_billed": "100"})
	require.NoError(t, err)
	assert.Equal(t, "Not Covered", result["policy_verdict"])
}

func TestPolicyLookup_UnknownPolicyErrors(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	require.NoError(t, SeedPolicies(ctx, b))

	handler := PolicyLookup(b)
	_, err := handler(ctx, map[string]string{"policy_id": "does-not-exist", "total_billed": "100"})
	require.Error(t, err)
}

func TestApproval_ApprovesCoveredLowFraudScore(t *testing.T) {
	result, err := Approval(context.Background(), map[string]string{"policy_status": "Covered", "fraud_score": "0.15"})
	require.NoError(t, err)
	assert.Equal(t, "Approved", result["final_decision"])
}

func TestApproval_ManualReviewOnCoveredHighFraudScore(t *testing.T) {
	result, err := Approval(context.Background(), map[string]string{"policy_status": "Covered", "fraud_score": "0.85"})
	require.NoError(t, err)
	assert.Equal(t, "Manual Review (High Fraud Score)", result["final_decision"])
}

func TestApproval_RejectsNotCoveredRegardlessOfFraudScore(t *testing.T) {
	result, err := Approval(context.Background(), map[string]string{"policy_status": "Not Covered", "fraud_score": "0.10"})
	require.NoError(t, err)
	assert.Equal(t, "Rejected (Not Covered by Policy)", result["final_decision"])
}

func TestFraudScorer_LocalHeuristicFlagsOverThousand(t *testing.T) {
	scorer := NewFraudScorer("")
	result, err := scorer.Handler(context.Background(), map[string]string{"total_billed": "15000"})
	require.NoError(t, err)
	assert.Equal(t, "0.85", result["fraud_score"])
	assert.Equal(t, true, result["is_flagged"])
}

func TestFraudScorer_LocalHeuristicUnderThousand(t *testing.T) {
	scorer := NewFraudScorer("")
	result, err := scorer.Handler(context.Background(), map[string]string{"total_billed": "500"})
	require.NoError(t, err)
	assert.Equal(t, "0.15", result["fraud_score"])
	assert.Equal(t, false, result["is_flagged"])
}
