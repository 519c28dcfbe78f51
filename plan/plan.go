// Package plan defines the Plan/Task document produced by a planner and
// consumed by the orchestrator, along with the data_from reference syntax
// tasks use to pass fields from upstream results into downstream details.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataRefPrefix marks a detail value as a reference to an upstream task's
// result rather than a literal. The canonical form is
// "data_from:{task_id}.{field}", resolving a single field out of the
// producing task's result. "result_from:{task_id}" (the whole result, no
// field) is accepted nowhere in this module: it is the deprecated sibling
// syntax noted in the design notes this package implements, and canonical
// plans only ever use DataRefPrefix.
const DataRefPrefix = "data_from:"

// Task is one node of a Plan: a unit of work addressed to a single agent
// role, with zero or more dependencies that must complete before it can be
// dispatched.
type Task struct {
	TaskID       string                 `json:"task_id"`
	Agent        string                 `json:"agent"`
	Details      map[string]interface{} `json:"details"`
	Dependencies []string               `json:"dependencies"`
}

// Plan is the immutable unit of work a planner hands to the orchestrator.
// Once persisted to a job hash it is never mutated; the orchestrator only
// reads it back to decide what to dispatch next.
type Plan struct {
	JobID string `json:"job_id"`
	Goal  string `json:"goal"`
	Tasks []Task `json:"tasks"`
}

// Marshal renders the plan as the JSON string stored at job:{job_id}.plan.
func (p Plan) Marshal() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("plan: marshal: %w", err)
	}
	return string(data), nil
}

// Unmarshal parses a plan back out of its stored JSON form.
func Unmarshal(data string) (Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Plan{}, fmt.Errorf("plan: unmarshal: %w", err)
	}
	return p, nil
}

// TaskByID returns the task with the given id, or false if no such task
// exists in the plan.
func (p Plan) TaskByID(id string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.TaskID == id {
			return t, true
		}
	}
	return Task{}, false
}

// DataRef is a parsed "data_from:{source_task_id}.{field}" reference.
type DataRef struct {
	SourceTaskID string
	Field        string
}

// ParseDataRef parses a detail value into a DataRef if it uses the
// data_from: syntax, reporting ok=false for literal (non-reference) values.
func ParseDataRef(value string) (DataRef, bool) {
	if !strings.HasPrefix(value, DataRefPrefix) {
		return DataRef{}, false
	}
	rest := strings.TrimPrefix(value, DataRefPrefix)
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return DataRef{}, false
	}
	return DataRef{SourceTaskID: rest[:dot], Field: rest[dot+1:]}, true
}
