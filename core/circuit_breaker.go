// Package core: circuit breaker for broker operations.
//
// The circuit breaker acts as a proxy that monitors failures and temporarily
// blocks requests when a failure threshold is reached. States:
// 1. Closed: Normal operation, requests pass through
// 2. Open: Threshold exceeded, requests fail immediately
// 3. Half-Open: Testing if service recovered, limited requests allowed
package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker provides circuit breaker functionality for fault tolerance.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
	GetState() string
	Reset()
}

// CircuitBreakerConfig configures a SimpleCircuitBreaker.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" env:"GOMIND_CB_ENABLED" default:"false"`
	Threshold        int           `json:"threshold" env:"GOMIND_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" env:"GOMIND_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" env:"GOMIND_CB_HALF_OPEN" default:"3"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		Threshold:        5,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 3,
	}
}

type cbState int

const (
	cbClosed cbState = iota
	cbOpen
	cbHalfOpen
)

// SimpleCircuitBreaker is an in-memory circuit breaker protecting broker
// calls from a downstream Redis outage. Used by the broker to avoid hammering
// a dead connection with blocking reads and writes.
type SimpleCircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger Logger

	mu          sync.Mutex
	state       cbState
	failures    int
	halfOpenOK  int
	openedAt    time.Time
}

// NewSimpleCircuitBreaker builds a circuit breaker. A nil logger is replaced
// with a no-op logger.
func NewSimpleCircuitBreaker(name string, config CircuitBreakerConfig, logger Logger) *SimpleCircuitBreaker {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &SimpleCircuitBreaker{name: name, config: config, logger: logger, state: cbClosed}
}

// Execute runs fn with circuit breaker protection. When disabled it always
// calls fn directly.
func (cb *SimpleCircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.config.Enabled {
		return fn()
	}

	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *SimpleCircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case cbOpen:
		if time.Since(cb.openedAt) >= cb.config.Timeout {
			cb.state = cbHalfOpen
			cb.halfOpenOK = 0
			return true
		}
		return false
	case cbHalfOpen:
		return cb.halfOpenOK < cb.config.HalfOpenRequests
	default:
		return true
	}
}

func (cb *SimpleCircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		if cb.state == cbHalfOpen || cb.failures >= cb.config.Threshold {
			cb.state = cbOpen
			cb.openedAt = time.Now()
			cb.logger.Warn("circuit breaker opened", map[string]interface{}{
				"circuit": cb.name, "failures": cb.failures,
			})
		}
		return
	}

	if cb.state == cbHalfOpen {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.config.HalfOpenRequests {
			cb.state = cbClosed
			cb.failures = 0
		}
		return
	}
	cb.failures = 0
}

func (cb *SimpleCircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func (cb *SimpleCircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = cbClosed
	cb.failures = 0
	cb.halfOpenOK = 0
}

var _ CircuitBreaker = (*SimpleCircuitBreaker)(nil)
