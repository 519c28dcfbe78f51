// Command agent runs a single agent role as its own OS process, selected
// by the AGENT_NAME environment variable. This is the standalone-process
// deployment shape; cmd/driver runs every role as goroutines in one
// process instead.
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
	"github.com/sinny777/agentic-ai-system/telemetry"
)

type registryEntry struct {
	toolName string
	handler  orchestration.Handler
}

func buildRegistry(b *broker.Broker) map[string]registryEntry {
	return map[string]registryEntry{
		"echo":            {"echo_text", domain.Echo},
		"upper":           {"upper_text", domain.Upper},
		"web_search":      {"web_search_api", domain.WebSearch},
		"summarization":   {"summarization_api", domain.Summarize},
		"document_reader": {"read_document", domain.DocumentReader},
		"policy_lookup":   {"lookup_policy", domain.PolicyLookup(b)},
		"fraud_scoring":   {"score_fraud", domain.NewFraudScorer(os.Getenv("FRAUD_SCORE_ENDPOINT")).Handler},
		"approval":        {"decide_approval", domain.Approval},
	}
}

func main() {
	agentName := os.Getenv("AGENT_NAME")
	if agentName == "" {
		fmt.Fprintln(os.Stderr, "AGENT_NAME must be set")
		os.Exit(1)
	}

	cfg := core.DefaultConfig("agent-" + agentName)
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

	entry, ok := buildRegistry(b)[agentName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown AGENT_NAME %q\n", agentName)
		os.Exit(1)
	}

	telemetryProvider, err := telemetry.New(telemetry.Config{
		ServiceName:  "agent-" + agentName,
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

	gov := governance.New(b, logger)
	a := orchestration.NewAgent(b, gov, orchestration.AgentConfig{
		AgentName:         agentName,
		ToolName:          entry.toolName,
		RateLimit:         cfg.Governance.Limit,
		RateWindowSeconds: cfg.Governance.WindowSeconds,
		Logger:            logger,
		Telemetry:         telemetryProvider,
	}, entry.handler)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received", nil)
		cancel()
	}()

	if err := a.Register(ctx); err != nil {
		logger.Error("failed to register agent", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	logger.Info("agent starting", map[string]interface{}{"agent": agentName, "tool": entry.toolName})
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("agent stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}
