// This file implements the orchestrator (§4.5): it multiplexes every
// results:*/errors:* stream through a single consumer group, updates
// per-job state, resolves data_from references, and dispatches the next
// ready wave of tasks until the job reaches a terminal status.
package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/codec"
	"github.com/sinny777/agentic-ai-system/core"
	"github.com/sinny777/agentic-ai-system/plan"
)

const orchestratorGroup = "orchestrator-group"
const orchestratorConsumer = "orchestrator-consumer"

// OrchestratorConfig configures the orchestrator process.
type OrchestratorConfig struct {
	// DefaultStreams is used when no results:*/errors:* streams exist yet
	// at startup (§4.5: "If none exist, fall back to a configured default
	// set"), e.g. when the fleet starts cold before any agent has ever
	// produced output.
	DefaultStreams []string

	// BlockMillis bounds each XReadGroup call. Default 2000ms (§4.5 step 1).
	BlockMillis int

	// RetryDelay is the sleep after a broker error (§4.5 step 6, §7 error
	// kind 4). Default 5s.
	RetryDelay time.Duration

	Logger    core.Logger
	Telemetry core.Telemetry
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.BlockMillis <= 0 {
		c.BlockMillis = 2000
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
}

// Orchestrator dispatches a plan's DAG of tasks, resolves data_from
// references against completed upstream results, and tracks per-job state
// in the job hash via a JobStore.
type Orchestrator struct {
	broker    *broker.Broker
	store     *JobStore
	config    OrchestratorConfig
	logger    core.Logger
	telemetry core.Telemetry
}

// NewOrchestrator builds an Orchestrator over broker b and store.
func NewOrchestrator(b *broker.Broker, store *JobStore, config *OrchestratorConfig) *Orchestrator {
	if config == nil {
		config = &OrchestratorConfig{}
	}
	config.applyDefaults()
	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/orchestrator")
	}
	return &Orchestrator{broker: b, store: store, config: *config, logger: logger, telemetry: config.Telemetry}
}

// discoverStreams computes stream_keys as the union of existing results:*
// and errors:* keys (§4.5), falling back to config.DefaultStreams if none
// exist yet.
func (o *Orchestrator) discoverStreams(ctx context.Context) ([]string, error) {
	resultKeys, err := o.broker.Keys(ctx, "results:*")
	if err != nil {
		return nil, err
	}
	errorKeys, err := o.broker.Keys(ctx, "errors:*")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(resultKeys)+len(errorKeys))
	var streams []string
	for _, k := range append(resultKeys, errorKeys...) {
		if !seen[k] {
			seen[k] = true
			streams = append(streams, k)
		}
	}

	if len(streams) == 0 {
		streams = append(streams, o.config.DefaultStreams...)
	}
	return streams, nil
}

// Run is the orchestrator's main loop (§4.5). It blocks until ctx is
// cancelled. Streams are rediscovered each time the loop has to (re)create
// groups, so an agent role that starts after the orchestrator is still
// picked up on the next Run (the orchestrator is expected to be restarted
// when the agent roster changes; dynamic mid-flight stream subscription is
// not attempted, matching the "no dynamic plan mutation" non-goal's spirit).
func (o *Orchestrator) Run(ctx context.Context) error {
	streams, err := o.discoverStreams(ctx)
	if err != nil {
		return core.NewFrameworkError("Orchestrator.Run", "orchestration", err)
	}
	if len(streams) == 0 {
		return core.NewFrameworkError("Orchestrator.Run", "orchestration",
			fmt.Errorf("no results:*/errors:* streams found and no default streams configured"))
	}

	for _, s := range streams {
		if err := o.broker.XGroupCreate(ctx, s, orchestratorGroup, "0", true); err != nil {
			return core.NewFrameworkErrorWithID("Orchestrator.Run", "orchestration", s, err)
		}
	}
	o.logger.Info("orchestrator listening", map[string]interface{}{"streams": streams})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messages, err := o.broker.XReadGroup(ctx, orchestratorGroup, orchestratorConsumer, streams, 1, o.config.BlockMillis)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("read failed, retrying", map[string]interface{}{"error": err.Error()})
			sleepOrDone(ctx, o.config.RetryDelay)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		for _, msg := range messages {
			o.handleMessage(ctx, msg)
		}
	}
}

func (o *Orchestrator) handleMessage(ctx context.Context, msg broker.StreamMessage) {
	if o.telemetry != nil {
		var span core.Span
		ctx, span = o.telemetry.StartSpan(ctx, "orchestrator.message")
		span.SetAttribute("stream", msg.Stream)
		defer span.End()
	}

	jobID, hasJob := msg.Fields["job_id"]
	taskID, hasTask := msg.Fields["task_id"]
	if !hasJob || !hasTask {
		o.logger.Warn("malformed stream message, acking to avoid poison-pill loop", map[string]interface{}{
			"stream": msg.Stream, "message_id": msg.ID,
		})
		o.ack(ctx, msg)
		return
	}

	var err error
	switch {
	case strings.Contains(msg.Stream, "results:"):
		err = o.HandleResult(ctx, jobID, taskID, msg.Fields["result"])
	case strings.Contains(msg.Stream, "errors:"):
		err = o.handleError(ctx, jobID, taskID, msg.Fields["error"])
	default:
		o.logger.Warn("message on unrecognized stream", map[string]interface{}{"stream": msg.Stream})
	}
	if err != nil {
		o.logger.Error("failed to process stream message", map[string]interface{}{
			"stream": msg.Stream, "job_id": jobID, "task_id": taskID, "error": err.Error(),
		})
	}

	o.ack(ctx, msg)
}

func (o *Orchestrator) ack(ctx context.Context, msg broker.StreamMessage) {
	if err := o.broker.XAck(ctx, msg.Stream, orchestratorGroup, msg.ID); err != nil {
		o.logger.Warn("ack failed", map[string]interface{}{"message_id": msg.ID, "error": err.Error()})
	}
}

// HandleResult records a completed task's result and sweeps the job for
// newly ready downstream tasks (§4.5 "HandleResult").
func (o *Orchestrator) HandleResult(ctx context.Context, jobID, taskID, resultStr string) error {
	if err := o.store.SetResult(ctx, jobID, taskID, resultStr); err != nil {
		return err
	}
	if err := o.store.SetTaskStatus(ctx, jobID, taskID, TaskCompleted); err != nil {
		return err
	}
	o.logger.Info("task result recorded", map[string]interface{}{"job_id": jobID, "task_id": taskID})
	return o.CheckAndDispatchNextTasks(ctx, jobID)
}

// handleError records a task failure and marks the job failed. Dependents
// are never dispatched once a job is failed, but siblings already
// dispatched still run to completion and their outcomes are recorded -
// this is the designed "fail-fast-at-barrier" behavior (§7, Open Question 2).
func (o *Orchestrator) handleError(ctx context.Context, jobID, taskID, message string) error {
	if err := o.store.SetError(ctx, jobID, taskID, message); err != nil {
		return err
	}
	if err := o.store.SetTaskStatus(ctx, jobID, taskID, TaskFailed); err != nil {
		return err
	}
	if err := o.store.SetStatus(ctx, jobID, StatusFailed); err != nil {
		return err
	}
	o.logger.Warn("task failed, job marked failed", map[string]interface{}{
		"job_id": jobID, "task_id": taskID, "error": message,
	})
	return nil
}

// StartJob validates the plan already persisted for jobID and dispatches
// its first wave of ready (dependency-free) tasks. Per design note §9.1,
// this module validates the plan for cycles before dispatch - the
// reference implementation this spec supersedes does not.
func (o *Orchestrator) StartJob(ctx context.Context, jobID string) error {
	p, err := o.store.GetPlan(ctx, jobID)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		o.logger.Error("plan failed validation, job marked failed", map[string]interface{}{
			"job_id": jobID, "error": err.Error(),
		})
		if setErr := o.store.SetStatus(ctx, jobID, StatusFailed); setErr != nil {
			return setErr
		}
		return core.NewFrameworkErrorWithID("Orchestrator.StartJob", "orchestration", jobID, err)
	}
	return o.CheckAndDispatchNextTasks(ctx, jobID)
}

// CheckAndDispatchNextTasks implements §4.5's eponymous routine: load the
// plan and full job state, compute the set of ready tasks from scratch (no
// state is cached between sweeps), resolve each one's data references, and
// dispatch it; finally check for job completion.
func (o *Orchestrator) CheckAndDispatchNextTasks(ctx context.Context, jobID string) error {
	p, err := o.store.GetPlan(ctx, jobID)
	if err != nil {
		return err
	}
	state, err := o.store.State(ctx, jobID)
	if err != nil {
		return err
	}
	if state[fieldStatus] == StatusFailed {
		return nil
	}

	graph := BuildJobGraph(p, state)
	ready := graph.ReadyTasks()

	for _, t := range ready {
		resolved, err := o.resolveDataDependencies(ctx, jobID, t.Details)
		if err != nil {
			o.logger.Warn("dependency resolution failed", map[string]interface{}{
				"job_id": jobID, "task_id": t.TaskID, "error": err.Error(),
			})
			if err := o.store.SetTaskStatus(ctx, jobID, t.TaskID, TaskFailedDependency); err != nil {
				return err
			}
			continue
		}
		if err := o.dispatch(ctx, jobID, t, resolved); err != nil {
			return err
		}
	}

	// Re-derive completion against the post-dispatch state: a task that
	// was just dispatched is not completed, so this only fires once every
	// task in the plan has actually finished.
	state, err = o.store.State(ctx, jobID)
	if err != nil {
		return err
	}
	graph = BuildJobGraph(p, state)
	if len(p.Tasks) > 0 && graph.IsJobComplete() {
		if err := o.store.SetStatus(ctx, jobID, StatusCompleted); err != nil {
			return err
		}
		o.logger.Info("job completed", map[string]interface{}{"job_id": jobID})
	}
	return nil
}

// resolveDataDependencies implements §4.5's ResolveDataDependencies:
// replace every "data_from:{task}.{field}" detail value with the named
// field out of that task's recorded result, passing every other value
// through unchanged.
func (o *Orchestrator) resolveDataDependencies(ctx context.Context, jobID string, details map[string]interface{}) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(details))
	for key, value := range details {
		str, isString := value.(string)
		if !isString {
			resolved[key] = value
			continue
		}
		ref, ok := plan.ParseDataRef(str)
		if !ok {
			resolved[key] = value
			continue
		}

		resultStr, found, err := o.store.GetResult(ctx, jobID, ref.SourceTaskID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, core.NewFrameworkErrorWithID("resolveDataDependencies", "orchestration", ref.SourceTaskID, core.ErrResultNotFound)
		}

		parsed, err := codec.ParseDict(resultStr)
		if err != nil {
			return nil, core.NewFrameworkErrorWithID("resolveDataDependencies", "orchestration", ref.SourceTaskID, err)
		}
		field, ok := parsed.Field(ref.Field)
		if !ok {
			return nil, core.NewFrameworkErrorWithID("resolveDataDependencies", "orchestration", ref.SourceTaskID, core.ErrFieldNotFound)
		}
		resolved[key] = field.Interface()
	}
	return resolved, nil
}

// dispatch implements §4.5's Dispatch: build the wire payload, serialize
// non-scalar values, write it to the agent's task stream, and mark the
// task dispatched.
func (o *Orchestrator) dispatch(ctx context.Context, jobID string, t plan.Task, resolved map[string]interface{}) error {
	payload := make(map[string]interface{}, len(resolved)+2)
	payload["job_id"] = jobID
	payload["task_id"] = t.TaskID
	for k, v := range resolved {
		str, err := codec.Stringify(codec.NewValue(v))
		if err != nil {
			return core.NewFrameworkErrorWithID("Orchestrator.dispatch", "orchestration", t.TaskID, err)
		}
		payload[k] = str
	}

	if _, err := o.broker.XAdd(ctx, "tasks:"+t.Agent, payload); err != nil {
		return core.NewFrameworkErrorWithID("Orchestrator.dispatch", "orchestration", t.TaskID, err)
	}
	if err := o.store.SetTaskStatus(ctx, jobID, t.TaskID, TaskDispatched); err != nil {
		return err
	}
	if err := o.store.SetStatus(ctx, jobID, StatusRunning); err != nil {
		return err
	}
	o.logger.Info("task dispatched", map[string]interface{}{"job_id": jobID, "task_id": t.TaskID, "agent": t.Agent})
	return nil
}
