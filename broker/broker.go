// Package broker wraps github.com/go-redis/redis/v8 with the exact set of
// primitives the orchestration engine needs: append-only streams with
// consumer-group semantics for at-least-once task/result delivery, hashes for
// job and governance state, sets for bookkeeping, and atomic counters for
// rate limiting. It is the single seam between the rest of this module and
// Redis - nothing outside this package imports go-redis directly.
package broker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sinny777/agentic-ai-system/core"
)

// Config configures the underlying Redis connection.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	// CircuitBreaker protects blocking reads/writes from a dead Redis
	// instance. Nil disables circuit breaking.
	CircuitBreaker core.CircuitBreaker
	Logger         core.Logger
}

// Addr returns the host:port form expected by go-redis.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Broker is the synchronous-to-the-issuer interface every other package
// depends on. All blocking operations (XReadGroup) honor the caller's
// context and an explicit block duration.
type Broker struct {
	client *redis.Client
	cb     core.CircuitBreaker
	logger core.Logger
}

// New connects to Redis, retrying up to three attempts with exponential
// backoff between them, since Redis may not be up yet when a process starts.
func New(cfg Config) (*Broker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/broker")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := connectWithRetry(client, logger); err != nil {
		return nil, core.NewFrameworkError("broker.New", "broker", err)
	}

	cb := cfg.CircuitBreaker
	if cb == nil {
		cb = core.NewSimpleCircuitBreaker("broker", core.CircuitBreakerConfig{Enabled: false}, logger)
	}

	return &Broker{client: client, cb: cb, logger: logger}, nil
}

// NewFromClient wraps an already-constructed go-redis client, bypassing the
// connect-with-retry dance. Used by tests that inject a miniredis-backed
// client.
func NewFromClient(client *redis.Client) (*Broker, error) {
	return &Broker{
		client: client,
		cb:     core.NewSimpleCircuitBreaker("broker", core.CircuitBreakerConfig{Enabled: false}, &core.NoOpLogger{}),
		logger: &core.NoOpLogger{},
	}, nil
}

func connectWithRetry(client *redis.Client, logger core.Logger) error {
	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			logger.Info("connected to broker", map[string]interface{}{"attempt": attempt + 1})
			return nil
		}

		lastErr = err
		logger.Warn("broker connection attempt failed", map[string]interface{}{
			"attempt": attempt + 1, "error": err.Error(),
		})
		if attempt < maxRetries-1 {
			backoff := time.Duration(math.Pow(2, float64(attempt+1))) * time.Second
			time.Sleep(backoff)
		}
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

// Close releases the underlying connection pool.
func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) exec(ctx context.Context, op string, fn func() error) error {
	err := b.cb.Execute(ctx, fn)
	if err != nil {
		b.logger.Warn("broker operation failed", map[string]interface{}{"op": op, "error": err.Error()})
	}
	return err
}

// --- Streams ---

// StreamMessage is one delivered entry from XReadGroup.
type StreamMessage struct {
	Stream string
	ID     string
	Fields map[string]string
}

// XAdd appends fields to stream, auto-generating the entry ID. All values
// are written as strings; non-scalar values should be JSON-encoded by the
// caller before being placed in fields, per the wire encoding contract.
func (b *Broker) XAdd(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	var id string
	err := b.exec(ctx, "XAdd", func() error {
		res, err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: fields}).Result()
		if err != nil {
			return err
		}
		id = res
		return nil
	})
	return id, err
}

// XGroupCreate creates a consumer group at the given start ID ("0" to read
// history, "$" for new entries only). Idempotent: BUSYGROUP is swallowed.
// mkstream creates the stream if it does not yet exist.
func (b *Broker) XGroupCreate(ctx context.Context, stream, group, start string, mkstream bool) error {
	return b.exec(ctx, "XGroupCreate", func() error {
		cmd := b.client.XGroupCreateMkStream
		if !mkstream {
			cmd = b.client.XGroupCreate
		}
		err := cmd(ctx, stream, group, start).Err()
		if err != nil && isBusyGroup(err) {
			return nil
		}
		return err
	})
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// XReadGroup performs a blocking read of at most count new entries (">")
// across the given streams for the named consumer group/consumer. blockMs=0
// means non-blocking (return immediately if nothing is pending). A timeout
// (no message available) is reported as (nil, nil), not an error.
func (b *Broker) XReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, blockMs int) ([]StreamMessage, error) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	// go-redis sends BLOCK 0 (wait forever) for a zero Block; a negative
	// Block omits the BLOCK argument, which is Redis's non-blocking read.
	block := time.Duration(blockMs) * time.Millisecond
	if blockMs <= 0 {
		block = -1
	}

	var out []StreamMessage
	err := b.exec(ctx, "XReadGroup", func() error {
		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  args,
			Count:    count,
			Block:    block,
		}).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				fields := make(map[string]string, len(msg.Values))
				for k, v := range msg.Values {
					fields[k] = fmt.Sprintf("%v", v)
				}
				out = append(out, StreamMessage{Stream: streamRes.Stream, ID: msg.ID, Fields: fields})
			}
		}
		return nil
	})
	return out, err
}

// XAck acknowledges a processed message id for group on stream.
func (b *Broker) XAck(ctx context.Context, stream, group, id string) error {
	return b.exec(ctx, "XAck", func() error {
		return b.client.XAck(ctx, stream, group, id).Err()
	})
}

// --- Hashes ---

// HSet sets a single field on a hash.
func (b *Broker) HSet(ctx context.Context, key, field string, value interface{}) error {
	return b.exec(ctx, "HSet", func() error {
		return b.client.HSet(ctx, key, field, value).Err()
	})
}

// HGet reads a single field from a hash. Returns ("", false, nil) if absent.
func (b *Broker) HGet(ctx context.Context, key, field string) (string, bool, error) {
	var val string
	var ok bool
	err := b.exec(ctx, "HGet", func() error {
		res, err := b.client.HGet(ctx, key, field).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		val, ok = res, true
		return nil
	})
	return val, ok, err
}

// HGetAll reads the entire hash.
func (b *Broker) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := b.exec(ctx, "HGetAll", func() error {
		res, err := b.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// HDel deletes fields from a hash.
func (b *Broker) HDel(ctx context.Context, key string, fields ...string) error {
	return b.exec(ctx, "HDel", func() error {
		return b.client.HDel(ctx, key, fields...).Err()
	})
}

// --- Sets ---

// SAdd adds a member to a set.
func (b *Broker) SAdd(ctx context.Context, key string, member interface{}) error {
	return b.exec(ctx, "SAdd", func() error {
		return b.client.SAdd(ctx, key, member).Err()
	})
}

// SMembers returns every member of a set.
func (b *Broker) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := b.exec(ctx, "SMembers", func() error {
		res, err := b.client.SMembers(ctx, key).Result()
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// --- Counters ---

// Incr atomically increments key and returns the new value. The caller is
// responsible for calling Expire when n==1 to establish a fixed window; see
// governance.CheckRateLimit for why that ordering is load-bearing.
func (b *Broker) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := b.exec(ctx, "Incr", func() error {
		res, err := b.client.Incr(ctx, key).Result()
		if err != nil {
			return err
		}
		n = res
		return nil
	})
	return n, err
}

// Expire sets a TTL in seconds on key. Idempotent: calling it again simply
// resets the TTL, it does not error if already set.
func (b *Broker) Expire(ctx context.Context, key string, seconds int) error {
	return b.exec(ctx, "Expire", func() error {
		return b.client.Expire(ctx, key, time.Duration(seconds)*time.Second).Err()
	})
}

// Keys returns every key matching a glob pattern via non-blocking SCAN,
// intended for bootstrap-time use only (flush, stream-key discovery) and
// never on the hot dispatch path.
func (b *Broker) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	err := b.exec(ctx, "Scan", func() error {
		var cursor uint64
		for {
			keys, next, err := b.client.Scan(ctx, cursor, pattern, 200).Result()
			if err != nil {
				return err
			}
			out = append(out, keys...)
			cursor = next
			if cursor == 0 {
				break
			}
		}
		return nil
	})
	return out, err
}

// Del deletes keys, ignoring a request for zero keys (go-redis errors on
// an empty variadic DEL).
func (b *Broker) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.exec(ctx, "Del", func() error {
		return b.client.Del(ctx, keys...).Err()
	})
}

// ParseInt is a small convenience used by callers formatting counter values
// read back out of hash fields.
func ParseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
