package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ProductionLogger is the structured logger used by every component in this
// module. It supports a "json" format for log aggregation and a "text"
// format for local development, matching LOG_FORMAT/LOG_LEVEL configuration.
type ProductionLogger struct {
	level       string
	debug       bool
	format      string
	component   string
	serviceName string
	output      io.Writer
	fields      map[string]interface{}
}

// NewProductionLogger builds a ProductionLogger from LoggingConfig.
func NewProductionLogger(cfg LoggingConfig, serviceName string) *ProductionLogger {
	var output io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		output = os.Stderr
	}
	level := strings.ToLower(cfg.Level)
	return &ProductionLogger{
		level:       level,
		debug:       level == "debug",
		format:      cfg.Format,
		serviceName: serviceName,
		output:      output,
	}
}

// WithComponent returns a copy of the logger scoped to a component name,
// e.g. "framework/orchestrator" or "agent/policy_check".
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	clone.fields = cloneFields(p.fields)
	return &clone
}

// WithField returns a copy of the logger with an extra field merged in.
func (p *ProductionLogger) WithField(key string, value interface{}) *ProductionLogger {
	clone := *p
	clone.fields = cloneFields(p.fields)
	clone.fields[key] = value
	return &clone
}

func cloneFields(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	merged := make(map[string]interface{}, len(p.fields)+len(fields))
	for k, v := range p.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}
		for k, v := range merged {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var fieldStr strings.Builder
	if len(merged) > 0 {
		fieldStr.WriteString(" ")
		for k, v := range merged {
			fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
		}
	}
	fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n", timestamp, level, p.component, msg, fieldStr.String())
}

var _ ComponentAwareLogger = (*ProductionLogger)(nil)
