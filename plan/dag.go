package plan

import (
	"github.com/sinny777/agentic-ai-system/core"
)

// dagNode mirrors a Task's dependency edges for the sole purpose of
// structural validation at plan intake; it is never persisted and carries
// no execution status (task_status lives in the job hash, not here).
type dagNode struct {
	id           string
	dependencies []string
	dependents   []string
}

// Validate checks a plan for the two conditions required before a job can
// be started: every dependency must reference a task that exists in the
// same plan, and the dependency graph must be acyclic. The reference
// implementation this module supersedes does not perform this check at all;
// adding it here is a deliberate hardening called out in the design notes
// this package implements.
func (p Plan) Validate() error {
	nodes := make(map[string]*dagNode, len(p.Tasks))
	for _, t := range p.Tasks {
		if _, dup := nodes[t.TaskID]; dup {
			return core.NewFrameworkErrorWithID("plan.Validate", "plan", t.TaskID, core.ErrDuplicateTaskID)
		}
		nodes[t.TaskID] = &dagNode{id: t.TaskID, dependencies: t.Dependencies}
	}

	for id, node := range nodes {
		for _, dep := range node.dependencies {
			depNode, ok := nodes[dep]
			if !ok {
				return core.NewFrameworkErrorWithID("plan.Validate", "plan", id, core.ErrUnknownReference)
			}
			depNode.dependents = append(depNode.dependents, id)
		}
	}

	visited := make(map[string]bool, len(nodes))
	inStack := make(map[string]bool, len(nodes))
	for id := range nodes {
		if !visited[id] {
			if hasCycle(id, nodes, visited, inStack) {
				return core.NewFrameworkError("plan.Validate", "plan", core.ErrCyclicPlan)
			}
		}
	}
	return nil
}

func hasCycle(id string, nodes map[string]*dagNode, visited, inStack map[string]bool) bool {
	visited[id] = true
	inStack[id] = true

	for _, dependent := range nodes[id].dependents {
		if !visited[dependent] {
			if hasCycle(dependent, nodes, visited, inStack) {
				return true
			}
		} else if inStack[dependent] {
			return true
		}
	}

	inStack[id] = false
	return false
}

// TopologicalOrder returns task IDs such that every task appears after all
// of its dependencies. The orchestrator does not use it: it dispatches by
// readiness (dependencies-complete), not by a precomputed order.
func (p Plan) TopologicalOrder() []string {
	inDegree := make(map[string]int, len(p.Tasks))
	dependents := make(map[string][]string, len(p.Tasks))
	for _, t := range p.Tasks {
		inDegree[t.TaskID] = len(t.Dependencies)
	}
	for _, t := range p.Tasks {
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], t.TaskID)
		}
	}

	var queue []string
	for _, t := range p.Tasks {
		if inDegree[t.TaskID] == 0 {
			queue = append(queue, t.TaskID)
		}
	}

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)
		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	return order
}
