// Command orchestrator runs the orchestrator loop as its own OS process.
// Job submission is not this binary's job; use cmd/driver's planner
// wiring, or call planner.BuildPlan + Orchestrator.StartJob from another
// process pointed at the same broker.
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
	"github.com/sinny777/agentic-ai-system/orchestration"
	"github.com/sinny777/agentic-ai-system/telemetry"
)

func main() {
	cfg := core.DefaultConfig("orchestrator")
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
		ServiceName:  "orchestrator",
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

	store := orchestration.NewJobStore(b, nil)
	defaultStreams := []string{
		"results:echo", "results:upper", "results:web_search", "results:summarization",
		"results:document_reader", "results:policy_lookup", "results:fraud_scoring", "results:approval",
		"errors:echo", "errors:upper", "errors:web_search", "errors:summarization",
		"errors:document_reader", "errors:policy_lookup", "errors:fraud_scoring", "errors:approval",
	}
	orch := orchestration.NewOrchestrator(b, store, &orchestration.OrchestratorConfig{
		DefaultStreams: defaultStreams,
		Logger:         logger,
		Telemetry:      telemetryProvider,
	})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received", nil)
		cancel()
	}()

	logger.Info("orchestrator starting", nil)
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("orchestrator stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}
