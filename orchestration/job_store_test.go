package orchestration

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/plan"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b, err := broker.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	return b
}

func testPlan() plan.Plan {
	return plan.Plan{
		JobID: "job-1",
		Goal:  "demo",
		Tasks: []plan.Task{
			{TaskID: "t1", Agent: "echo", Details: map[string]interface{}{"text": "hi"}},
			{TaskID: "t2", Agent: "upper", Dependencies: []string{"t1"}, Details: map[string]interface{}{"text": "data_from:t1.text"}},
		},
	}
}

func TestJobStore_CreateAndGetPlan(t *testing.T) {
	store := NewJobStore(newTestBroker(t), nil)
	ctx := context.Background()
	p := testPlan()

	require.NoError(t, store.Create(ctx, p))

	got, err := store.GetPlan(ctx, p.JobID)
	require.NoError(t, err)
	assert.Equal(t, p.Goal, got.Goal)
	assert.Len(t, got.Tasks, 2)

	status, err := store.GetStatus(ctx, p.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
}

func TestJobStore_GetPlan_UnknownJob(t *testing.T) {
	store := NewJobStore(newTestBroker(t), nil)
	_, err := store.GetPlan(context.Background(), "missing")
	require.Error(t, err)
}

func TestJobStore_TaskStatusRoundTrip(t *testing.T) {
	store := NewJobStore(newTestBroker(t), nil)
	ctx := context.Background()
	p := testPlan()
	require.NoError(t, store.Create(ctx, p))

	_, ok, err := store.GetTaskStatus(ctx, p.JobID, "t1")
	require.NoError(t, err)
	assert.False(t, ok, "task status is absent until the orchestrator sets it")

	require.NoError(t, store.SetTaskStatus(ctx, p.JobID, "t1", TaskDispatched))
	status, ok, err := store.GetTaskStatus(ctx, p.JobID, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TaskDispatched, status)
}

func TestJobStore_ResultAndErrorFields(t *testing.T) {
	store := NewJobStore(newTestBroker(t), nil)
	ctx := context.Background()
	p := testPlan()
	require.NoError(t, store.Create(ctx, p))

	require.NoError(t, store.SetResult(ctx, p.JobID, "t1", `{"text":"hi"}`))
	result, ok, err := store.GetResult(ctx, p.JobID, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"text":"hi"}`, result)

	require.NoError(t, store.SetError(ctx, p.JobID, "t2", "boom"))

	state, err := store.State(ctx, p.JobID)
	require.NoError(t, err)
	assert.Equal(t, "boom", state["error:t2"])
	assert.Contains(t, state, fieldPlan)
}

func TestJobStore_TerminalReport_ExcludesPlanButKeepsGoal(t *testing.T) {
	store := NewJobStore(newTestBroker(t), nil)
	ctx := context.Background()
	p := testPlan()
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, store.SetStatus(ctx, p.JobID, StatusCompleted))
	require.NoError(t, store.SetResult(ctx, p.JobID, "t2", `{"text":"HI"}`))

	report, err := store.TerminalReport(ctx, p.JobID)
	require.NoError(t, err)
	assert.NotContains(t, report, fieldPlan)
	assert.Equal(t, p.Goal, report["goal"])
	assert.Equal(t, p.JobID, report["job_id"])
	assert.Equal(t, StatusCompleted, report[fieldStatus])
}
