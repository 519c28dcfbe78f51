// Package telemetry implements core.Telemetry with OpenTelemetry. It is a
// condensed form of this codebase's original telemetry package: that
// package wires both an OTLP/HTTP trace exporter and an OTLP/HTTP metric
// exporter behind a shared provider. This package keeps the same StartSpan/
// RecordMetric shape and the same fall-back-to-stdout posture, but traces
// export over OTLP/gRPC (or to stdout when no collector is configured)
// and metrics are recorded through the global, unconfigured metric API -
// this module does not pull in an SDK metric exporter, so RecordMetric
// calls are real instrument calls that simply have nowhere to export to
// until a collector is wired up, rather than a hand-rolled no-op.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sinny777/agentic-ai-system/core"
)

// Config selects the trace exporter and identifies this service in
// exported spans.
type Config struct {
	ServiceName string

	// OTLPEndpoint, if non-empty, is used with an OTLP/gRPC exporter
	// (host:port, e.g. "localhost:4317"). If empty, spans are written to
	// stdout instead - useful for local runs without a collector.
	OTLPEndpoint string
}

// Provider implements core.Telemetry over an OpenTelemetry TracerProvider
// plus the global metric API.
type Provider struct {
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.Mutex
}

// New builds a Provider per cfg. It never returns an error for a missing
// endpoint: that just selects the stdout exporter.
func New(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	exporter, err := newTraceExporter(cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		tracer:        tp.Tracer(cfg.ServiceName),
		meter:         otel.Meter(cfg.ServiceName),
		traceProvider: tp,
		counters:      make(map[string]metric.Float64Counter),
		histograms:    make(map[string]metric.Float64Histogram),
	}, nil
}

func newTraceExporter(endpoint string) (sdktrace.SpanExporter, error) {
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	return otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
}

// StartSpan starts a span named name as a child of ctx's span, if any.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric routes value to a counter or histogram instrument keyed by
// name, using the same duration/count name-sniffing heuristic as this
// module's earlier telemetry package.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	ctx := context.Background()

	if looksLikeDuration(name) {
		h := p.histogramFor(name)
		if h != nil {
			h.Record(ctx, value, metric.WithAttributes(attrs...))
		}
		return
	}
	c := p.counterFor(name)
	if c != nil {
		c.Add(ctx, value, metric.WithAttributes(attrs...))
	}
}

func (p *Provider) counterFor(name string) metric.Float64Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c, err := p.meter.Float64Counter(name)
	if err != nil {
		return nil
	}
	p.counters[name] = c
	return c
}

func (p *Provider) histogramFor(name string) metric.Float64Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil
	}
	p.histograms[name] = h
	return h
}

func looksLikeDuration(name string) bool {
	for _, suffix := range []string{"duration", "latency", "time_ms", "seconds"} {
		if len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

// Shutdown flushes and closes the underlying trace provider, giving
// pending spans up to the context's deadline to export.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.traceProvider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
