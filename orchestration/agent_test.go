package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinny777/agentic-ai-system/governance"
)

func echoHandler(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
	return map[string]interface{}{"text": fields["text"]}, nil
}

func runOneMessage(t *testing.T, a *Agent, ctx context.Context) {
	t.Helper()
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return a.processed.Load() >= 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestAgent_HappyPath_EmitsResult(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	gov := governance.New(b, nil)
	require.NoError(t, gov.RegisterToolAccess(ctx, "echo", []string{"echo_text"}))

	a := NewAgent(b, gov, AgentConfig{AgentName: "echo", ToolName: "echo_text", BlockMillis: 50}, echoHandler)
	require.NoError(t, a.Register(ctx))

	_, err := b.XAdd(ctx, a.config.taskStream(), map[string]interface{}{
		"job_id": "job-1", "task_id": "t1", "text": "hi",
	})
	require.NoError(t, err)

	runOneMessage(t, a, ctx)

	err = b.XGroupCreate(ctx, a.config.resultStream(), "test-reader", "0", true)
	require.NoError(t, err)
	msgs, err := b.XReadGroup(ctx, "test-reader", "c1", []string{a.config.resultStream()}, 1, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "job-1", msgs[0].Fields["job_id"])
	assert.Equal(t, "t1", msgs[0].Fields["task_id"])
}

func TestAgent_DeniedTool_EmitsError(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	gov := governance.New(b, nil)
	// No RegisterToolAccess call: governance defaults closed.

	a := NewAgent(b, gov, AgentConfig{AgentName: "echo", ToolName: "echo_text", BlockMillis: 50}, echoHandler)
	require.NoError(t, a.Register(ctx))

	_, err := b.XAdd(ctx, a.config.taskStream(), map[string]interface{}{
		"job_id": "job-1", "task_id": "t1", "text": "hi",
	})
	require.NoError(t, err)

	runOneMessage(t, a, ctx)

	err = b.XGroupCreate(ctx, a.config.errorStream(), "test-reader", "0", true)
	require.NoError(t, err)
	msgs, err := b.XReadGroup(ctx, "test-reader", "c1", []string{a.config.errorStream()}, 1, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Fields["error"], "Access denied")
}

func TestAgent_RateLimitExceeded_EmitsError(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	gov := governance.New(b, nil)
	require.NoError(t, gov.RegisterToolAccess(ctx, "echo", []string{"echo_text"}))

	a := NewAgent(b, gov, AgentConfig{
		AgentName: "echo", ToolName: "echo_text", BlockMillis: 50,
		RateLimit: 1, RateWindowSeconds: 60,
	}, echoHandler)
	require.NoError(t, a.Register(ctx))

	for _, taskID := range []string{"t1", "t2"} {
		_, err := b.XAdd(ctx, a.config.taskStream(), map[string]interface{}{
			"job_id": "job-1", "task_id": taskID, "text": "hi",
		})
		require.NoError(t, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		a.Run(runCtx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return a.processed.Load() >= 2
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	err := b.XGroupCreate(ctx, a.config.errorStream(), "test-reader", "0", true)
	require.NoError(t, err)
	msgs, err := b.XReadGroup(ctx, "test-reader", "c1", []string{a.config.errorStream()}, 10, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Fields["error"], "Rate limit exceeded")
}

func TestAgent_HandlerPanic_RecoveredAsError(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	gov := governance.New(b, nil)
	require.NoError(t, gov.RegisterToolAccess(ctx, "flaky", []string{"flaky_tool"}))

	panicker := func(ctx context.Context, fields map[string]string) (map[string]interface{}, error) {
		panic("boom")
	}
	a := NewAgent(b, gov, AgentConfig{AgentName: "flaky", ToolName: "flaky_tool", BlockMillis: 50}, panicker)
	require.NoError(t, a.Register(ctx))

	_, err := b.XAdd(ctx, a.config.taskStream(), map[string]interface{}{"job_id": "job-1", "task_id": "t1"})
	require.NoError(t, err)

	runOneMessage(t, a, ctx)

	err = b.XGroupCreate(ctx, a.config.errorStream(), "test-reader", "0", true)
	require.NoError(t, err)
	msgs, err := b.XReadGroup(ctx, "test-reader", "c1", []string{a.config.errorStream()}, 1, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Fields["error"], "handler panic")
}
