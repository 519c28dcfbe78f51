// This file implements the generic agent runtime described in spec §4.3: a
// single-threaded cooperative consumer loop that fetches one task at a time
// from its own task stream, gates it through governance, invokes a domain
// handler, and emits a result or error before acknowledging. It is adapted
// from this codebase's earlier generic TaskWorkerPool (a multi-type worker
// pool draining a Redis list): that shape doesn't fit here because spec §4.3
// binds one agent process to exactly one task stream, one tool name and one
// handler rather than a dispatch table of handlers pulling off a shared
// queue, and the wire format is a consumer-group stream (XREADGROUP/XACK),
// not LPUSH/BRPOP. The panic-recovery-around-the-handler idiom is kept, and
// an atomic counter tracks how many task messages have been processed.
package orchestration

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/codec"
	"github.com/sinny777/agentic-ai-system/core"
	"github.com/sinny777/agentic-ai-system/governance"
)

// Handler is the domain logic an agent invokes for each task it dequeues:
// PerformTask(task_fields) -> result_fields | error in spec terms.
type Handler func(ctx context.Context, fields map[string]string) (map[string]interface{}, error)

// AgentConfig names the constants fixed for the lifetime of an agent
// process (§4.3): its role name, the tool it calls, and the governance
// budget applied to that tool.
type AgentConfig struct {
	// AgentName identifies this agent role and its task stream
	// (tasks:{AgentName}) and consumer group (also AgentName).
	AgentName string

	// ToolName is the governance-gated capability this agent exercises.
	ToolName string

	// RateLimit/RateWindowSeconds default to the runtime default from §4.2
	// (100 calls per 3600s) when zero.
	RateLimit         int
	RateWindowSeconds int

	// ConsumerName defaults to "{AgentName}-consumer".
	ConsumerName string

	// BlockMillis is how long XReadGroup blocks waiting for a task.
	// Default 1000ms, per §4.3 step 1.
	BlockMillis int

	// RetryDelay is how long the loop sleeps after a broker error before
	// retrying (§4.3 step 6, §7 error kind 4). Default 5s.
	RetryDelay time.Duration

	Logger    core.Logger
	Telemetry core.Telemetry
}

func (c *AgentConfig) applyDefaults() {
	if c.ConsumerName == "" {
		c.ConsumerName = c.AgentName + "-consumer"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = governance.DefaultLimit
	}
	if c.RateWindowSeconds <= 0 {
		c.RateWindowSeconds = governance.DefaultWindowSeconds
	}
	if c.BlockMillis <= 0 {
		c.BlockMillis = 1000
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
}

func (c AgentConfig) taskStream() string {
	return "tasks:" + c.AgentName
}

func (c AgentConfig) resultStream() string {
	return "results:" + c.AgentName
}

func (c AgentConfig) errorStream() string {
	return "errors:" + c.AgentName
}

// Agent is the generic consumer-group runtime every agent role runs: only
// AgentConfig and Handler vary between roles (§9 "Polymorphism over
// agents" - the capability is plain data plus a handler function).
type Agent struct {
	broker  *broker.Broker
	gov     *governance.Governance
	config  AgentConfig
	handler Handler
	logger  core.Logger

	processed atomic.Int64
}

// NewAgent builds an Agent. A nil logger/telemetry in config falls back to
// no-ops.
func NewAgent(b *broker.Broker, gov *governance.Governance, config AgentConfig, handler Handler) *Agent {
	config.applyDefaults()
	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("agent/" + config.AgentName)
	}
	return &Agent{broker: b, gov: gov, config: config, handler: handler, logger: logger}
}

// Register performs the one-time setup from §4.3: announce membership in
// registered_agents and ensure the consumer group exists on this agent's
// task stream, starting from the beginning of the stream ("0") so no
// pre-existing undelivered task is skipped.
func (a *Agent) Register(ctx context.Context) error {
	if err := a.broker.SAdd(ctx, "registered_agents", a.config.AgentName); err != nil {
		return core.NewFrameworkErrorWithID("Agent.Register", "agent", a.config.AgentName, err)
	}
	if err := a.broker.XGroupCreate(ctx, a.config.taskStream(), a.config.AgentName, "0", true); err != nil {
		return core.NewFrameworkErrorWithID("Agent.Register", "agent", a.config.AgentName, err)
	}
	a.logger.Info("agent registered", map[string]interface{}{
		"agent": a.config.AgentName, "tool": a.config.ToolName, "stream": a.config.taskStream(),
	})
	return nil
}

// Run is the main loop (§4.3). It blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messages, err := a.broker.XReadGroup(ctx,
			a.config.AgentName, a.config.ConsumerName,
			[]string{a.config.taskStream()}, 1, a.config.BlockMillis,
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("read failed, retrying", map[string]interface{}{"error": err.Error()})
			sleepOrDone(ctx, a.config.RetryDelay)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		for _, msg := range messages {
			a.handleMessage(ctx, msg)
		}
	}
}

func (a *Agent) handleMessage(ctx context.Context, msg broker.StreamMessage) {
	var endSpan func()
	if a.config.Telemetry != nil {
		spanCtx, span := a.config.Telemetry.StartSpan(ctx, "agent.task")
		span.SetAttribute("agent", a.config.AgentName)
		endSpan = span.End
		ctx = spanCtx
	}
	if endSpan != nil {
		defer endSpan()
	}

	taskID := fieldOr(msg.Fields, "task_id", "unknown")
	jobID := fieldOr(msg.Fields, "job_id", "unknown")
	if _, ok := msg.Fields["task_id"]; !ok {
		a.logger.Warn("task message missing task_id", map[string]interface{}{"message_id": msg.ID})
	}
	if _, ok := msg.Fields["job_id"]; !ok {
		a.logger.Warn("task message missing job_id", map[string]interface{}{"message_id": msg.ID})
	}

	result, failErr := a.gate(ctx)
	if failErr == nil {
		result, failErr = a.invoke(ctx, msg.Fields)
	}

	if failErr != nil {
		a.emitError(ctx, jobID, taskID, failErr.Error(), msg.Fields)
	} else {
		a.emitResult(ctx, jobID, taskID, result)
	}

	if err := a.broker.XAck(ctx, a.config.taskStream(), a.config.AgentName, msg.ID); err != nil {
		a.logger.Warn("ack failed", map[string]interface{}{"message_id": msg.ID, "error": err.Error()})
	}
	a.processed.Add(1)
}

// gate applies the governance check from §4.3 step 3: tool access, then
// rate limit, in that order.
func (a *Agent) gate(ctx context.Context) (map[string]interface{}, error) {
	if !a.gov.CheckToolAccess(ctx, a.config.AgentName, a.config.ToolName) {
		return nil, fmt.Errorf("Access denied for tool %s", a.config.ToolName)
	}
	if !a.gov.CheckRateLimit(ctx, a.config.AgentName, a.config.ToolName, a.config.RateLimit, a.config.RateWindowSeconds) {
		return nil, fmt.Errorf("Rate limit exceeded")
	}
	return nil, nil
}

// invoke runs the domain handler with panic recovery, matching this
// package's earlier executeHandler idiom: a handler panic is converted to
// an error rather than crashing the agent process, and the task message is
// still acked (§4.3 step 5) - only an unhandled panic that escapes this
// recover would leave the message pending for redelivery.
func (a *Agent) invoke(ctx context.Context, fields map[string]string) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("handler panicked", map[string]interface{}{
				"agent": a.config.AgentName, "panic": r, "stack": string(debug.Stack()),
			})
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return a.handler(ctx, fields)
}

func (a *Agent) emitResult(ctx context.Context, jobID, taskID string, result map[string]interface{}) {
	resultStr, err := codec.Stringify(codec.NewValue(result))
	if err != nil {
		a.emitError(ctx, jobID, taskID, fmt.Sprintf("failed to stringify result: %v", err), nil)
		return
	}
	_, err = a.broker.XAdd(ctx, a.config.resultStream(), map[string]interface{}{
		"job_id": jobID, "task_id": taskID, "result": resultStr,
	})
	if err != nil {
		a.logger.Error("failed to emit result", map[string]interface{}{
			"job_id": jobID, "task_id": taskID, "error": err.Error(),
		})
		return
	}
	a.logger.Info("task completed", map[string]interface{}{"job_id": jobID, "task_id": taskID})
}

func (a *Agent) emitError(ctx context.Context, jobID, taskID, message string, originalTask map[string]string) {
	originalStr, err := codec.Stringify(codec.NewValue(stringMapToInterface(originalTask)))
	if err != nil {
		originalStr = ""
	}
	_, err = a.broker.XAdd(ctx, a.config.errorStream(), map[string]interface{}{
		"job_id": jobID, "task_id": taskID, "error": message, "original_task": originalStr,
	})
	if err != nil {
		a.logger.Error("failed to emit error", map[string]interface{}{
			"job_id": jobID, "task_id": taskID, "error": err.Error(),
		})
		return
	}
	a.logger.Warn("task failed", map[string]interface{}{"job_id": jobID, "task_id": taskID, "message": message})
}

func fieldOr(fields map[string]string, key, fallback string) string {
	if v, ok := fields[key]; ok && v != "" {
		return v
	}
	return fallback
}

func stringMapToInterface(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
