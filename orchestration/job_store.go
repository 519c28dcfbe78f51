// Package orchestration implements the agent runtime (§4.3), the job state
// store, the per-job readiness graph, and the orchestrator loop (§4.5) that
// ties them together.
//
// JobStore is adapted from this codebase's earlier generic per-task Redis
// key/value store: instead of one Redis key per task, the job model in this
// spec keeps every task's state as fields inside a single hash keyed by
// job_id (job:{job_id}), so JobStore's methods are typed accessors over that
// one hash rather than a key-per-entity store.
package orchestration

import (
	"context"
	"fmt"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/core"
	"github.com/sinny777/agentic-ai-system/plan"
)

const (
	fieldPlan   = "plan"
	fieldStatus = "status"

	// StatusPending, StatusRunning, StatusCompleted and StatusFailed are the
	// values job:{job_id}.status can take (§3).
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	// Per-task status values (§3, §4.6).
	TaskPending          = "pending"
	TaskDispatched       = "dispatched"
	TaskCompleted        = "completed"
	TaskFailed           = "failed"
	TaskFailedDependency = "failed_dependency"
)

// JobStoreConfig configures a JobStore.
type JobStoreConfig struct {
	// KeyPrefix namespaces job hash keys: "{prefix}:{job_id}". Default "job".
	KeyPrefix string `json:"key_prefix"`

	Logger core.Logger `json:"-"`
}

// DefaultJobStoreConfig returns default configuration.
func DefaultJobStoreConfig() JobStoreConfig {
	return JobStoreConfig{KeyPrefix: "job"}
}

// JobStore wraps the broker's hash operations with the typed field layout
// described in spec §3: plan, status, task_status:{id}, result:{id},
// error:{id}.
type JobStore struct {
	broker *broker.Broker
	config JobStoreConfig
	logger core.Logger
}

// NewJobStore creates a JobStore over broker b.
func NewJobStore(b *broker.Broker, config *JobStoreConfig) *JobStore {
	if config == nil {
		defaultConfig := DefaultJobStoreConfig()
		config = &defaultConfig
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "job"
	}
	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/orchestration")
	}
	return &JobStore{broker: b, config: *config, logger: logger}
}

func (s *JobStore) key(jobID string) string {
	return fmt.Sprintf("%s:%s", s.config.KeyPrefix, jobID)
}

// Create persists a freshly built plan with status=pending. Called once by
// the planner (§4.4); the job hash is never mutated again except by the
// orchestrator.
func (s *JobStore) Create(ctx context.Context, p plan.Plan) error {
	data, err := p.Marshal()
	if err != nil {
		return core.NewFrameworkErrorWithID("JobStore.Create", "orchestration", p.JobID, err)
	}
	key := s.key(p.JobID)
	if err := s.broker.HSet(ctx, key, fieldPlan, data); err != nil {
		return core.NewFrameworkErrorWithID("JobStore.Create", "orchestration", p.JobID, err)
	}
	if err := s.broker.HSet(ctx, key, fieldStatus, StatusPending); err != nil {
		return core.NewFrameworkErrorWithID("JobStore.Create", "orchestration", p.JobID, err)
	}
	s.logger.Info("job created", map[string]interface{}{"job_id": p.JobID, "tasks": len(p.Tasks)})
	return nil
}

// GetPlan loads and parses the persisted plan for jobID.
func (s *JobStore) GetPlan(ctx context.Context, jobID string) (plan.Plan, error) {
	data, ok, err := s.broker.HGet(ctx, s.key(jobID), fieldPlan)
	if err != nil {
		return plan.Plan{}, core.NewFrameworkErrorWithID("JobStore.GetPlan", "orchestration", jobID, err)
	}
	if !ok {
		return plan.Plan{}, core.NewFrameworkErrorWithID("JobStore.GetPlan", "orchestration", jobID, core.ErrJobNotFound)
	}
	return plan.Unmarshal(data)
}

// SetStatus sets job:{jobID}.status.
func (s *JobStore) SetStatus(ctx context.Context, jobID, status string) error {
	return s.broker.HSet(ctx, s.key(jobID), fieldStatus, status)
}

// GetStatus reads job:{jobID}.status.
func (s *JobStore) GetStatus(ctx context.Context, jobID string) (string, error) {
	status, ok, err := s.broker.HGet(ctx, s.key(jobID), fieldStatus)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", core.ErrJobNotFound
	}
	return status, nil
}

// SetTaskStatus sets task_status:{taskID} in jobID's hash.
func (s *JobStore) SetTaskStatus(ctx context.Context, jobID, taskID, status string) error {
	return s.broker.HSet(ctx, s.key(jobID), "task_status:"+taskID, status)
}

// GetTaskStatus reads task_status:{taskID}; ok=false means the task has not
// yet been observed by the orchestrator (the "absent" initial state, §4.6).
func (s *JobStore) GetTaskStatus(ctx context.Context, jobID, taskID string) (status string, ok bool, err error) {
	return s.broker.HGet(ctx, s.key(jobID), "task_status:"+taskID)
}

// SetResult sets result:{taskID} to the stringified result dict.
func (s *JobStore) SetResult(ctx context.Context, jobID, taskID, resultStr string) error {
	return s.broker.HSet(ctx, s.key(jobID), "result:"+taskID, resultStr)
}

// GetResult reads result:{taskID}.
func (s *JobStore) GetResult(ctx context.Context, jobID, taskID string) (string, bool, error) {
	return s.broker.HGet(ctx, s.key(jobID), "result:"+taskID)
}

// SetError sets error:{taskID} to the error message.
func (s *JobStore) SetError(ctx context.Context, jobID, taskID, message string) error {
	return s.broker.HSet(ctx, s.key(jobID), "error:"+taskID, message)
}

// State returns the entire job hash as a flat map, used by
// CheckAndDispatchNextTasks to build the readiness graph and by the
// terminal report.
func (s *JobStore) State(ctx context.Context, jobID string) (map[string]string, error) {
	state, err := s.broker.HGetAll(ctx, s.key(jobID))
	if err != nil {
		return nil, core.NewFrameworkErrorWithID("JobStore.State", "orchestration", jobID, err)
	}
	if len(state) == 0 {
		return nil, core.NewFrameworkErrorWithID("JobStore.State", "orchestration", jobID, core.ErrJobNotFound)
	}
	return state, nil
}

// TerminalReport returns every hash field except "plan", plus the plan's
// goal, per §4.5 step 4 ("emit the terminal report (goal, final task's
// result, all hash fields except plan)").
func (s *JobStore) TerminalReport(ctx context.Context, jobID string) (map[string]interface{}, error) {
	state, err := s.State(ctx, jobID)
	if err != nil {
		return nil, err
	}
	p, err := plan.Unmarshal(state[fieldPlan])
	if err != nil {
		return nil, core.NewFrameworkErrorWithID("JobStore.TerminalReport", "orchestration", jobID, err)
	}

	report := make(map[string]interface{}, len(state))
	for k, v := range state {
		if k == fieldPlan {
			continue
		}
		report[k] = v
	}
	report["goal"] = p.Goal
	report["job_id"] = jobID
	return report, nil
}
