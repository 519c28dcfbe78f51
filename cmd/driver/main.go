// Command driver runs the entire fleet - every example agent plus the
// orchestrator - as goroutines in a single process, bootstraps governance
// permissions and reference data, submits one demo job, and prints its
// terminal report. It is the single-binary shape of the two deployment
// options named in SPEC_FULL.md's supplemented features: cmd/agent and
// cmd/orchestrator are the standalone-process alternative.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sinny777/agentic-ai-system/broker"
	"github.com/sinny777/agentic-ai-system/core"
	"github.com/sinny777/agentic-ai-system/domain"
	"github.com/sinny777/agentic-ai-system/governance"
	"github.com/sinny777/agentic-ai-system/orchestration"
	"github.com/sinny777/agentic-ai-system/plan"
	"github.com/sinny777/agentic-ai-system/planner"
	"github.com/sinny777/agentic-ai-system/telemetry"
)

type roleBinding struct {
	agentName string
	toolName  string
	handler   orchestration.Handler
}

func main() {
	cfg := core.DefaultConfig("agentic-driver")
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	cb := core.NewSimpleCircuitBreaker("broker", core.DefaultCircuitBreakerConfig(), logger)
	b, err := broker.New(broker.Config{
		Host: cfg.Broker.Host, Port: cfg.Broker.Port,
		Password: cfg.Broker.Password, DB: cfg.Broker.DB,
		CircuitBreaker: cb, Logger: logger,
	})
	if err != nil {
		logger.Error("failed to connect to broker", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryProvider, err := telemetry.New(telemetry.Config{
		ServiceName:  "agentic-driver",
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	if err != nil {
		logger.Error("failed to initialize telemetry", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	if err := flushBootstrapState(ctx, b); err != nil {
		logger.Error("failed to flush prior run state", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	gov := governance.New(b, logger)
	store := orchestration.NewJobStore(b, nil)
	plnr := planner.New(store, logger)
	orch := orchestration.NewOrchestrator(b, store, &orchestration.OrchestratorConfig{
		DefaultStreams: []string{"results:echo", "results:upper", "errors:echo", "errors:upper"},
		Logger:         logger,
		Telemetry:      telemetryProvider,
	})

	if err := domain.SeedPolicies(ctx, b); err != nil {
		logger.Error("failed to seed policies", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	roles := []roleBinding{
		{"echo", "echo_text", domain.Echo},
		{"upper", "upper_text", domain.Upper},
		{"web_search", "web_search_api", domain.WebSearch},
		{"summarization", "summarization_api", domain.Summarize},
		{"document_reader", "read_document", domain.DocumentReader},
		{"policy_lookup", "lookup_policy", domain.PolicyLookup(b)},
		{"fraud_scoring", "score_fraud", domain.NewFraudScorer(os.Getenv("FRAUD_SCORE_ENDPOINT")).Handler},
		{"approval", "decide_approval", domain.Approval},
	}

	for _, role := range roles {
		if err := gov.RegisterToolAccess(ctx, role.agentName, []string{role.toolName}); err != nil {
			logger.Error("failed to register tool access", map[string]interface{}{"agent": role.agentName, "error": err.Error()})
			os.Exit(1)
		}
	}

	agents := make([]*orchestration.Agent, 0, len(roles))
	for _, role := range roles {
		a := orchestration.NewAgent(b, gov, orchestration.AgentConfig{
			AgentName:         role.agentName,
			ToolName:          role.toolName,
			RateLimit:         cfg.Governance.Limit,
			RateWindowSeconds: cfg.Governance.WindowSeconds,
			Logger:            logger,
			Telemetry:         telemetryProvider,
		}, role.handler)
		if err := a.Register(ctx); err != nil {
			logger.Error("failed to register agent", map[string]interface{}{"agent": role.agentName, "error": err.Error()})
			os.Exit(1)
		}
		agents = append(agents, a)
	}

	for _, a := range agents {
		go func(a *orchestration.Agent) {
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("agent stopped", map[string]interface{}{"error": err.Error()})
			}
		}(a)
	}
	go func() {
		if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("orchestrator stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	demoPlan, err := plnr.BuildPlan(ctx, "greet and shout a message", []plan.Task{
		{TaskID: "t1", Agent: "echo", Details: map[string]interface{}{"text": "hello from the driver"}},
		{TaskID: "t2", Agent: "upper", Dependencies: []string{"t1"}, Details: map[string]interface{}{
			"text": "data_from:t1.text",
		}},
	})
	if err != nil {
		logger.Error("failed to build demo plan", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if err := orch.StartJob(ctx, demoPlan.JobID); err != nil {
		logger.Error("failed to start demo job", map[string]interface{}{"job_id": demoPlan.JobID, "error": err.Error()})
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reportCh := make(chan map[string]interface{}, 1)
	go waitForTerminal(ctx, store, demoPlan.JobID, reportCh)

	select {
	case report := <-reportCh:
		printReport(demoPlan.JobID, report)
	case <-sigCh:
		logger.Info("shutdown signal received", nil)
	case <-time.After(30 * time.Second):
		logger.Warn("demo job did not reach a terminal state before timeout", map[string]interface{}{"job_id": demoPlan.JobID})
	}

	cancel()
}

// flushBootstrapState implements §6 CLI surface step 1 - connect to the
// broker and flush everything a prior run left behind - before governance
// is re-registered and reference data re-seeded. Grounded on
// original_source/main.py's own startup block ("Clearing old data from
// Redis..."), which scans the same four stream/hash glob patterns plus the
// registered_agents set; this module additionally flushes gov:permissions
// and policies, since those are also bootstrap-seeded state a second run
// would otherwise see stale.
func flushBootstrapState(ctx context.Context, b *broker.Broker) error {
	globs := []string{"job:*", "tasks:*", "results:*", "errors:*"}
	var keys []string
	for _, pattern := range globs {
		matched, err := b.Keys(ctx, pattern)
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, matched...)
	}
	keys = append(keys, "registered_agents", "gov:permissions", "policies")
	return b.Del(ctx, keys...)
}

func waitForTerminal(ctx context.Context, store *orchestration.JobStore, jobID string, out chan<- map[string]interface{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := store.GetStatus(ctx, jobID)
			if err != nil {
				continue
			}
			if status == orchestration.StatusCompleted || status == orchestration.StatusFailed {
				report, err := store.TerminalReport(ctx, jobID)
				if err != nil {
					return
				}
				out <- report
				return
			}
		}
	}
}

func printReport(jobID string, report map[string]interface{}) {
	fmt.Printf("job %s terminal report:\n", jobID)
	for k, v := range report {
		fmt.Printf("  %s: %v\n", k, v)
	}
}
