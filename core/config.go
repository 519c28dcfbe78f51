package core

import (
	"os"
	"strconv"
	"strings"
)

// BrokerConfig configures the Redis connection used by the broker
// abstraction. Mirrors REDIS_HOST/REDIS_PORT/REDIS_PASSWORD from the
// reference implementation.
type BrokerConfig struct {
	Host     string `json:"host" env:"REDIS_HOST" default:"localhost"`
	Port     int    `json:"port" env:"REDIS_PORT" default:"6379"`
	Password string `json:"password" env:"REDIS_PASSWORD" default:""`
	DB       int    `json:"db" env:"REDIS_DB" default:"0"`
}

// Addr returns the host:port form expected by go-redis.
func (c BrokerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// LoggingConfig controls the ProductionLogger.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"text"`
	Output string `json:"output" env:"LOG_OUTPUT" default:"stdout"`
}

// GovernanceDefaults is the tool-invocation rate limit the agent binaries
// (cmd/agent, cmd/driver) apply to every agent they start.
type GovernanceDefaults struct {
	Limit         int `json:"limit" env:"GOMIND_RATE_LIMIT" default:"100"`
	WindowSeconds int `json:"window_seconds" env:"GOMIND_RATE_WINDOW" default:"3600"`
}

// Config is the root env-driven configuration for every binary in this
// module (driver, agent processes, orchestrator process).
type Config struct {
	ServiceName string
	Broker      BrokerConfig
	Logging     LoggingConfig
	Governance  GovernanceDefaults

	logger Logger
}

// DefaultConfig returns a Config populated with defaults, before any
// environment overrides are applied.
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Broker: BrokerConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Governance: GovernanceDefaults{
			Limit:         100,
			WindowSeconds: 3600,
		},
	}
}

// LoadFromEnv overlays environment variables onto the config, following the
// GOMIND_* / REDIS_* naming convention. Only variables that are actually set
// override the existing value, so defaults and functional options still win
// when the environment is silent about a setting.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Broker.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Broker.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Broker.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Broker.DB = db
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("GOMIND_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Governance.Limit = n
		}
	}
	if v := os.Getenv("GOMIND_RATE_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Governance.WindowSeconds = n
		}
	}
	return nil
}

// NewLogger builds the ProductionLogger described by this config, with no
// component set; callers narrow it with WithComponent.
func (c *Config) NewLogger() ComponentAwareLogger {
	return NewProductionLogger(c.Logging, c.ServiceName)
}
