// Package planner builds a Plan from a goal string and a task list and
// persists it through a JobStore (§4.4). Decomposing the goal into tasks
// itself is out of scope here (spec Non-goal: no LLM-driven planning); the
// caller supplies the task graph and BuildPlan assigns identity and wires
// it into storage.
package planner

import (
	"context"

	"github.com/google/uuid"

	"github.com/sinny777/agentic-ai-system/core"
	"github.com/sinny777/agentic-ai-system/orchestration"
	"github.com/sinny777/agentic-ai-system/plan"
)

// Planner builds and persists plans against a job store.
type Planner struct {
	store  *orchestration.JobStore
	logger core.Logger
}

// New builds a Planner over store.
func New(store *orchestration.JobStore, logger core.Logger) *Planner {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/planner")
	}
	return &Planner{store: store, logger: logger}
}

// BuildPlan assigns a fresh job ID to goal/tasks, validates the resulting
// DAG, and persists it with status=pending. The caller is responsible for
// calling Orchestrator.StartJob afterward to dispatch the first wave.
func (p *Planner) BuildPlan(ctx context.Context, goal string, tasks []plan.Task) (plan.Plan, error) {
	newPlan := plan.Plan{
		JobID: uuid.NewString(),
		Goal:  goal,
		Tasks: tasks,
	}

	if err := newPlan.Validate(); err != nil {
		return plan.Plan{}, core.NewFrameworkErrorWithID("Planner.BuildPlan", "planner", newPlan.JobID, err)
	}

	if err := p.store.Create(ctx, newPlan); err != nil {
		return plan.Plan{}, err
	}

	p.logger.Info("plan built", map[string]interface{}{
		"job_id": newPlan.JobID, "goal": goal, "tasks": len(tasks),
	})
	return newPlan, nil
}
