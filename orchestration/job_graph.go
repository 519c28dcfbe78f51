package orchestration

import (
	"github.com/sinny777/agentic-ai-system/plan"
)

// NodeStatus mirrors the five task states from spec §4.6. Unlike the
// generic six-state NodeStatus this package's JobGraph is adapted from
// (Pending/Ready/Running/Completed/Failed/Skipped, used for a one-shot
// in-memory workflow DAG), there is no NodeSkipped here: this spec's
// designed behavior leaves dependents of a failed task sitting in
// NodePending forever rather than cascading a skip (§7, §9 design note 2).
type NodeStatus int

const (
	NodePending NodeStatus = iota
	NodeDispatched
	NodeCompleted
	NodeFailed
	NodeFailedDependency
)

func nodeStatusFromString(s string) NodeStatus {
	switch s {
	case TaskDispatched:
		return NodeDispatched
	case TaskCompleted:
		return NodeCompleted
	case TaskFailed:
		return NodeFailed
	case TaskFailedDependency:
		return NodeFailedDependency
	default:
		return NodePending
	}
}

// node is one task's position in a job's dependency graph, rebuilt fresh on
// every CheckAndDispatchNextTasks sweep from the job hash snapshot - there
// is no persistent DAG object carried between sweeps, matching spec §4.5's
// "load plan, load entire job hash as state" recomputation.
type node struct {
	task   plan.Task
	status NodeStatus
}

// JobGraph is the per-sweep readiness view of one job's plan, built from a
// plan and a snapshot of its job hash.
type JobGraph struct {
	nodes map[string]*node
	order []string
}

// BuildJobGraph constructs a JobGraph from p and a job hash state snapshot
// (as returned by JobStore.State).
func BuildJobGraph(p plan.Plan, state map[string]string) *JobGraph {
	g := &JobGraph{nodes: make(map[string]*node, len(p.Tasks)), order: make([]string, 0, len(p.Tasks))}
	for _, t := range p.Tasks {
		status := nodeStatusFromString(state["task_status:"+t.TaskID])
		g.nodes[t.TaskID] = &node{task: t, status: status}
		g.order = append(g.order, t.TaskID)
	}
	return g
}

// Completed returns the set of task IDs currently in NodeCompleted.
func (g *JobGraph) Completed() map[string]bool {
	out := make(map[string]bool, len(g.nodes))
	for id, n := range g.nodes {
		if n.status == NodeCompleted {
			out[id] = true
		}
	}
	return out
}

// ReadyTasks returns, in plan order, every task whose status is NodePending
// and whose dependencies are all NodeCompleted - the set CheckAndDispatchNextTasks
// dispatches on a given sweep (§4.5 step 3).
func (g *JobGraph) ReadyTasks() []plan.Task {
	completed := g.Completed()
	var ready []plan.Task
	for _, id := range g.order {
		n := g.nodes[id]
		if n.status != NodePending {
			continue
		}
		if dependenciesSatisfied(n.task.Dependencies, completed) {
			ready = append(ready, n.task)
		}
	}
	return ready
}

func dependenciesSatisfied(deps []string, completed map[string]bool) bool {
	for _, d := range deps {
		if !completed[d] {
			return false
		}
	}
	return true
}

// IsJobComplete reports whether every task in the graph is NodeCompleted -
// the condition under which job status transitions to "completed" (§4.5
// step 4, Invariant 3).
func (g *JobGraph) IsJobComplete() bool {
	for _, n := range g.nodes {
		if n.status != NodeCompleted {
			return false
		}
	}
	return true
}

// Statistics summarizes how many of the graph's tasks are in each state.
type Statistics struct {
	TotalTasks      int
	Pending         int
	Dispatched      int
	Completed       int
	Failed          int
	FailedDependency int
}

// Statistics computes a snapshot summary of the graph's node states.
func (g *JobGraph) Statistics() Statistics {
	var s Statistics
	s.TotalTasks = len(g.nodes)
	for _, n := range g.nodes {
		switch n.status {
		case NodePending:
			s.Pending++
		case NodeDispatched:
			s.Dispatched++
		case NodeCompleted:
			s.Completed++
		case NodeFailed:
			s.Failed++
		case NodeFailedDependency:
			s.FailedDependency++
		}
	}
	return s
}
