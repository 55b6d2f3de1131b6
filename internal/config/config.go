// Package config loads and defaults the settings for every component
// wired together by cmd/fncore: the Loader (cache + circuit breaker),
// the Executor, the Sandbox Runner, the Log/Metric Store, observability,
// and the daemon's own HTTP listener.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageConfig selects and configures the Log/Metric Store's backend
// (spec §4.F "embedded SQL store" vs. a Postgres cluster).
type StorageConfig struct {
	Driver   string `json:"driver"`   // "sqlite" or "postgres"
	SQLite   string `json:"sqlite"`   // file path, ":memory:" for ephemeral
	Postgres string `json:"postgres"` // DSN, only used when driver == "postgres"
}

// CacheConfig holds the Module Loader's LRU+TTL cache parameters (spec §4.B).
type CacheConfig struct {
	MaxCacheSize int           `json:"max_cache_size"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

// BreakerConfig holds the circuit breaker's parameters (spec §4.A).
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	ResetTimeout     time.Duration `json:"reset_timeout"`
}

// LoaderConfig holds the Module Loader's own parameters (spec §6).
type LoaderConfig struct {
	Timeout        time.Duration `json:"timeout"`
	Cache          CacheConfig   `json:"cache"`
	CircuitBreaker BreakerConfig `json:"circuit_breaker"`
	UpstreamURL    string        `json:"upstream_url"` // empty means local-only sandbox
}

// SandboxConfig holds the Sandbox Runner's parameters (spec §4.D).
type SandboxConfig struct {
	DefaultTimeout       time.Duration `json:"default_timeout"`
	MaxConsoleOutputSize int           `json:"max_console_output_size"`
	BlockNetwork         bool          `json:"block_network"`
}

// ExecutorConfig holds the Function Executor's admission and retention
// parameters (spec §4.E).
type ExecutorConfig struct {
	MaxConcurrentExecutions int           `json:"max_concurrent_executions"`
	MaxQueueSize            int           `json:"max_queue_size"`
	ExecutionTimeout        time.Duration `json:"execution_timeout"`
	WarmIdleTimeout         time.Duration `json:"warm_idle_timeout"`
	MaxConsoleOutputSize    int           `json:"max_console_output_size"`
	LogRetention            time.Duration `json:"log_retention"`
}

// DaemonConfig holds the HTTP listener's own settings.
type DaemonConfig struct {
	HTTPAddr string `json:"http_addr"`
	LogLevel string `json:"log_level"`
}

// TracingConfig holds OpenTelemetry tracing settings (component I).
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"` // otlp-http, stdout
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// ObservabilityConfig groups tracing and logging.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing"`
	Logging LoggingConfig `json:"logging"`
}

// RedisConfig holds the optional Redis-backed L2 metadata cache
// settings. Unset (Addr == "") means the FunctionSpec registry runs
// in-memory only.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Config is the root configuration for cmd/fncore.
type Config struct {
	Storage       StorageConfig       `json:"storage"`
	Loader        LoaderConfig        `json:"loader"`
	Sandbox       SandboxConfig       `json:"sandbox"`
	Executor      ExecutorConfig      `json:"executor"`
	Daemon        DaemonConfig        `json:"daemon"`
	Observability ObservabilityConfig `json:"observability"`
	Redis         RedisConfig         `json:"redis"`
}

// DefaultConfig returns a Config with sensible defaults for local
// development: a SQLite store in the file fncore.db, no upstream fetcher, and no
// Redis accelerator.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			SQLite: "fncore.db",
		},
		Loader: LoaderConfig{
			Timeout: 10 * time.Second,
			Cache: CacheConfig{
				MaxCacheSize: 256,
				CacheTTL:     5 * time.Minute,
			},
			CircuitBreaker: BreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				ResetTimeout:     30 * time.Second,
			},
		},
		Sandbox: SandboxConfig{
			DefaultTimeout:       30 * time.Second,
			MaxConsoleOutputSize: 200,
			BlockNetwork:         true,
		},
		Executor: ExecutorConfig{
			MaxConcurrentExecutions: 4,
			MaxQueueSize:            32,
			ExecutionTimeout:        30 * time.Second,
			WarmIdleTimeout:         5 * time.Minute,
			MaxConsoleOutputSize:    200,
			LogRetention:            7 * 24 * time.Hour,
		},
		Daemon: DaemonConfig{
			HTTPAddr: ":8080",
			LogLevel: "info",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "fncore",
				SampleRate:  1.0,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// LoadFromFile loads configuration from a JSON file, applied over the
// defaults so a partial file only overrides what it sets.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to cfg in place.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FNCORE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("FNCORE_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLite = v
	}
	if v := os.Getenv("FNCORE_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres = v
		cfg.Storage.Driver = "postgres"
	}
	if v := os.Getenv("FNCORE_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("FNCORE_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("FNCORE_LOADER_UPSTREAM_URL"); v != "" {
		cfg.Loader.UpstreamURL = v
	}
	if v := os.Getenv("FNCORE_LOADER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Loader.Timeout = d
		}
	}
	if v := os.Getenv("FNCORE_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loader.Cache.MaxCacheSize = n
		}
	}
	if v := os.Getenv("FNCORE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Loader.Cache.CacheTTL = d
		}
	}
	if v := os.Getenv("FNCORE_BREAKER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loader.CircuitBreaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("FNCORE_BREAKER_RESET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Loader.CircuitBreaker.ResetTimeout = d
		}
	}
	if v := os.Getenv("FNCORE_EXECUTOR_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.MaxConcurrentExecutions = n
		}
	}
	if v := os.Getenv("FNCORE_EXECUTOR_MAX_QUEUE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.MaxQueueSize = n
		}
	}
	if v := os.Getenv("FNCORE_EXECUTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.ExecutionTimeout = d
		}
	}
	if v := os.Getenv("FNCORE_EXECUTOR_WARM_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.WarmIdleTimeout = d
		}
	}
	if v := os.Getenv("FNCORE_SANDBOX_BLOCK_NETWORK"); v != "" {
		cfg.Sandbox.BlockNetwork = parseBool(v)
	}
	if v := os.Getenv("FNCORE_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("FNCORE_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("FNCORE_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("FNCORE_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("FNCORE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FNCORE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FNCORE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
