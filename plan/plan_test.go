package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinny777/agentic-ai-system/core"
)

func linearPlan() Plan {
	return Plan{
		JobID: "job-1",
		Goal:  "demo",
		Tasks: []Task{
			{TaskID: "t1", Agent: "echo", Details: map[string]interface{}{"text": "hi"}},
			{TaskID: "t2", Agent: "upper", Details: map[string]interface{}{"text": "data_from:t1.echoed"}, Dependencies: []string{"t1"}},
		},
	}
}

func TestValidate_AcceptsAcyclicPlan(t *testing.T) {
	assert.NoError(t, linearPlan().Validate())
}

func TestValidate_RejectsCycle(t *testing.T) {
	p := Plan{Tasks: []Task{
		{TaskID: "a", Dependencies: []string{"b"}},
		{TaskID: "b", Dependencies: []string{"a"}},
	}}
	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCyclicPlan)
}

func TestValidate_RejectsUnknownDependency(t *testing.T) {
	p := Plan{Tasks: []Task{
		{TaskID: "a", Dependencies: []string{"ghost"}},
	}}
	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownReference)
}

func TestValidate_RejectsDuplicateTaskID(t *testing.T) {
	p := Plan{Tasks: []Task{
		{TaskID: "a"},
		{TaskID: "a"},
	}}
	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicateTaskID)
}

func TestTopologicalOrder_RespectsDependencies(t *testing.T) {
	order := linearPlan().TopologicalOrder()
	require.Len(t, order, 2)
	assert.Equal(t, "t1", order[0])
	assert.Equal(t, "t2", order[1])
}

func TestParseDataRef(t *testing.T) {
	ref, ok := ParseDataRef("data_from:task1_read_docs.extracted_data")
	require.True(t, ok)
	assert.Equal(t, "task1_read_docs", ref.SourceTaskID)
	assert.Equal(t, "extracted_data", ref.Field)

	_, ok = ParseDataRef("literal-value")
	assert.False(t, ok)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := linearPlan()
	data, err := p.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, p.JobID, got.JobID)
	assert.Len(t, got.Tasks, 2)
}
