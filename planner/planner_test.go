package planner

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/orchestration"
	"github.com/sinny777/agentic-ai-system/plan"
)

func newTestStore(t *testing.T) *orchestration.JobStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b, err := broker.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	return orchestration.NewJobStore(b, nil)
}

func TestBuildPlan_AssignsJobIDAndPersists(t *testing.T) {
	p := New(newTestStore(t), nil)
	ctx := context.Background()

	built, err := p.BuildPlan(ctx, "greet", []plan.Task{
		{TaskID: "t1", Agent: "echo", Details: map[string]interface{}{"text": "hi"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, built.JobID)
	assert.Equal(t, "greet", built.Goal)
}

func TestBuildPlan_RejectsCyclicTaskGraph(t *testing.T) {
	p := New(newTestStore(t), nil)
	ctx := context.Background()

	_, err := p.BuildPlan(ctx, "bad", []plan.Task{
		{TaskID: "a", Agent: "echo", Dependencies: []string{"b"}},
		{TaskID: "b", Agent: "echo", Dependencies: []string{"a"}},
	})
	require.Error(t, err)
}
