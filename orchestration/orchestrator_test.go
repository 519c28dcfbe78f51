package orchestration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinny777/agentic-ai-system/plan"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *JobStore) {
	b := newTestBroker(t)
	store := NewJobStore(b, nil)
	orch := NewOrchestrator(b, store, nil)
	return orch, store
}

func TestStartJob_DispatchesDependencyFreeTasks(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	ctx := context.Background()
	p := testPlan()
	require.NoError(t, store.Create(ctx, p))

	require.NoError(t, orch.StartJob(ctx, p.JobID))

	status, ok, err := store.GetTaskStatus(ctx, p.JobID, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TaskDispatched, status)

	_, ok, err = store.GetTaskStatus(ctx, p.JobID, "t2")
	require.NoError(t, err)
	assert.False(t, ok, "t2 depends on t1 and must not be dispatched yet")

	jobStatus, err := store.GetStatus(ctx, p.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, jobStatus)
}

func TestStartJob_RejectsCyclicPlan(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	ctx := context.Background()
	p := plan.Plan{
		JobID: "cyclic",
		Tasks: []plan.Task{
			{TaskID: "a", Agent: "echo", Dependencies: []string{"b"}},
			{TaskID: "b", Agent: "echo", Dependencies: []string{"a"}},
		},
	}
	require.NoError(t, store.Create(ctx, p))

	err := orch.StartJob(ctx, p.JobID)
	require.Error(t, err)

	status, err := store.GetStatus(ctx, p.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)
}

func TestHandleResult_ResolvesDataFromAndDispatchesDownstream(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	ctx := context.Background()
	p := testPlan()
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, orch.StartJob(ctx, p.JobID))

	require.NoError(t, orch.HandleResult(ctx, p.JobID, "t1", `{"text":"hi"}`))

	status, ok, err := store.GetTaskStatus(ctx, p.JobID, "t2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TaskDispatched, status)
}

func TestHandleResult_JobCompletesWhenEveryTaskDone(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	ctx := context.Background()
	p := testPlan()
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, orch.StartJob(ctx, p.JobID))

	require.NoError(t, orch.HandleResult(ctx, p.JobID, "t1", `{"text":"hi"}`))
	require.NoError(t, orch.HandleResult(ctx, p.JobID, "t2", `{"text":"HI"}`))

	status, err := store.GetStatus(ctx, p.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
}

func TestHandleError_MarksJobFailedWithoutCancellingSiblings(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	ctx := context.Background()
	p := plan.Plan{
		JobID: "fanout",
		Tasks: []plan.Task{
			{TaskID: "root", Agent: "echo", Details: map[string]interface{}{"text": "go"}},
			{TaskID: "left", Agent: "echo", Dependencies: []string{"root"}},
			{TaskID: "right", Agent: "upper", Dependencies: []string{"root"}},
		},
	}
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, orch.StartJob(ctx, p.JobID))
	require.NoError(t, orch.HandleResult(ctx, p.JobID, "root", `{"text":"go"}`))

	leftStatus, _, err := store.GetTaskStatus(ctx, p.JobID, "left")
	require.NoError(t, err)
	rightStatus, _, err := store.GetTaskStatus(ctx, p.JobID, "right")
	require.NoError(t, err)
	require.Equal(t, TaskDispatched, leftStatus)
	require.Equal(t, TaskDispatched, rightStatus)

	require.NoError(t, orch.handleError(ctx, p.JobID, "left", "boom"))

	jobStatus, err := store.GetStatus(ctx, p.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, jobStatus)

	// The sibling "right" task was already dispatched before the failure and
	// is untouched by it: no cascading cancellation, per design.
	rightStatus, _, err = store.GetTaskStatus(ctx, p.JobID, "right")
	require.NoError(t, err)
	assert.Equal(t, TaskDispatched, rightStatus)

	// Recording its own result later still succeeds; the job stays failed.
	require.NoError(t, orch.HandleResult(ctx, p.JobID, "right", `{"text":"GO"}`))
	jobStatus, err = store.GetStatus(ctx, p.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, jobStatus)
}

func TestResolveDataDependencies_UnknownFieldFailsTaskAsFailedDependency(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	ctx := context.Background()
	p := plan.Plan{
		JobID: "badref",
		Tasks: []plan.Task{
			{TaskID: "t1", Agent: "echo", Details: map[string]interface{}{"text": "hi"}},
			{TaskID: "t2", Agent: "upper", Dependencies: []string{"t1"}, Details: map[string]interface{}{
				"text": "data_from:t1.does_not_exist",
			}},
		},
	}
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, orch.StartJob(ctx, p.JobID))

	require.NoError(t, orch.HandleResult(ctx, p.JobID, "t1", `{"text":"hi"}`))

	status, ok, err := store.GetTaskStatus(ctx, p.JobID, "t2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TaskFailedDependency, status)
}

func TestDiscoverStreams_FallsBackToDefaultsWhenNoneExist(t *testing.T) {
	b := newTestBroker(t)
	store := NewJobStore(b, nil)
	orch := NewOrchestrator(b, store, &OrchestratorConfig{DefaultStreams: []string{"results:echo"}})

	streams, err := orch.discoverStreams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"results:echo"}, streams)
}

func TestDiscoverStreams_UnionsExistingResultAndErrorStreams(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	_, err := b.XAdd(ctx, "results:echo", map[string]interface{}{"job_id": "j", "task_id": "t"})
	require.NoError(t, err)
	_, err = b.XAdd(ctx, "errors:upper", map[string]interface{}{"job_id": "j", "task_id": "t"})
	require.NoError(t, err)

	store := NewJobStore(b, nil)
	orch := NewOrchestrator(b, store, nil)

	streams, err := orch.discoverStreams(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"results:echo", "errors:upper"}, streams)
}
