package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildJobGraph_ReadyTasks_OnlyDependencyFreeInitially(t *testing.T) {
	p := testPlan()
	g := BuildJobGraph(p, map[string]string{})

	ready := g.ReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "t1", ready[0].TaskID)
	assert.False(t, g.IsJobComplete())
}

func TestBuildJobGraph_ReadyTasks_UnlocksAfterDependencyCompletes(t *testing.T) {
	p := testPlan()
	g := BuildJobGraph(p, map[string]string{"task_status:t1": TaskCompleted})

	ready := g.ReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "t2", ready[0].TaskID)
}

func TestBuildJobGraph_IsJobComplete(t *testing.T) {
	p := testPlan()
	g := BuildJobGraph(p, map[string]string{
		"task_status:t1": TaskCompleted,
		"task_status:t2": TaskCompleted,
	})
	assert.True(t, g.IsJobComplete())
}

func TestBuildJobGraph_FailedDependencyNeverReady(t *testing.T) {
	p := testPlan()
	g := BuildJobGraph(p, map[string]string{"task_status:t1": TaskFailedDependency})

	assert.Empty(t, g.ReadyTasks())
	assert.False(t, g.IsJobComplete())
}

func TestJobGraph_Statistics(t *testing.T) {
	p := testPlan()
	g := BuildJobGraph(p, map[string]string{"task_status:t1": TaskCompleted})

	stats := g.Statistics()
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
}
