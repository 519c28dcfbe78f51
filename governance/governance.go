// Package governance implements tool-level authorization and per-agent,
// per-tool rate limiting for the agent runtime. Both checks are backed by
// broker state so every agent process (and every consumer sharing a group)
// observes the same permission and counter state.
package governance

import (
	"context"
	"strings"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/core"
)

const permissionsKey = "gov:permissions"

// DefaultLimit and DefaultWindowSeconds govern any tool invocation whose
// caller does not specify an explicit limit/window.
const (
	DefaultLimit         = 100
	DefaultWindowSeconds = 3600
)

// Governance gates every task an agent runtime dequeues: is the agent
// allowed to call its tool at all, and has it exceeded its call budget for
// the current fixed window.
type Governance struct {
	broker *broker.Broker
	logger core.Logger
}

// New builds a Governance instance over the given broker.
func New(b *broker.Broker, logger core.Logger) *Governance {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/governance")
	}
	return &Governance{broker: b, logger: logger}
}

// RegisterToolAccess overwrites the permitted tool list for agent, replacing
// any previously registered list. Called at bootstrap, not at runtime.
func (g *Governance) RegisterToolAccess(ctx context.Context, agent string, tools []string) error {
	csv := strings.Join(tools, ",")
	if err := g.broker.HSet(ctx, permissionsKey, agent, csv); err != nil {
		return core.NewFrameworkErrorWithID("governance.RegisterToolAccess", "governance", agent, err)
	}
	g.logger.Info("registered tool access", map[string]interface{}{"agent": agent, "tools": tools})
	return nil
}

// CheckToolAccess reports whether agent is permitted to call tool. An agent
// with no registered permissions is denied (and logged), not silently
// allowed: governance defaults closed.
func (g *Governance) CheckToolAccess(ctx context.Context, agent, tool string) bool {
	csv, ok, err := g.broker.HGet(ctx, permissionsKey, agent)
	if err != nil {
		g.logger.Warn("tool access check failed", map[string]interface{}{"agent": agent, "tool": tool, "error": err.Error()})
		return false
	}
	if !ok {
		g.logger.Warn("no registered permissions for agent", map[string]interface{}{"agent": agent, "tool": tool})
		return false
	}
	for _, t := range strings.Split(csv, ",") {
		if t == tool {
			return true
		}
	}
	return false
}

// CheckRateLimit enforces a fixed tumbling window: the first call in a
// window stamps the key's expiry, and every call within the window
// increments the same counter. This is deliberately not a sliding window -
// the count resets hard at the window boundary rather than decaying
// continuously - matching the governance contract this package implements.
//
// There is a known race between the Incr that creates the key and the
// Expire that bounds it: if the process crashes between the two, the key
// never expires and the agent is rate limited forever. An atomic
// "increment and set expiry only if newly created" primitive would close
// this, but go-redis v8 has no single command for it; accepting the race is
// a recorded decision, not an oversight.
func (g *Governance) CheckRateLimit(ctx context.Context, agent, tool string, limit, windowSeconds int) bool {
	key := rateLimitKey(agent, tool)
	n, err := g.broker.Incr(ctx, key)
	if err != nil {
		g.logger.Warn("rate limit check failed", map[string]interface{}{"agent": agent, "tool": tool, "error": err.Error()})
		return false
	}
	if n == 1 {
		if err := g.broker.Expire(ctx, key, windowSeconds); err != nil {
			g.logger.Warn("failed to set rate limit window expiry", map[string]interface{}{
				"agent": agent, "tool": tool, "error": err.Error(),
			})
		}
	}
	return n <= int64(limit)
}

// CheckRateLimitDefault applies DefaultLimit/DefaultWindowSeconds.
func (g *Governance) CheckRateLimitDefault(ctx context.Context, agent, tool string) bool {
	return g.CheckRateLimit(ctx, agent, tool, DefaultLimit, DefaultWindowSeconds)
}

func rateLimitKey(agent, tool string) string {
	return "gov:rate_limit:" + agent + ":" + tool
}
