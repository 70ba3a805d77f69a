// Package engineconfig loads engine runtime configuration from a YAML file
// with ENGINE_* environment variable overrides, following the env-or-default
// pattern used throughout this codebase's command entry points.
package engineconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine's top-level runtime configuration.
type Config struct {
	// MaxTicksPerExecution caps how many ticks a single execution may run
	// before it is forced to a stop (0 means unbounded).
	MaxTicksPerExecution int `yaml:"max_ticks_per_execution"`

	// CompileMaxIterations bounds the compile-stabilization loop (§9).
	CompileMaxIterations int `yaml:"compile_max_iterations"`

	// DefaultModelAdapter names the model adapter used when a component
	// tree doesn't set one explicitly ("anthropic", "openai", "bedrock").
	DefaultModelAdapter string `yaml:"default_model_adapter"`

	// PersistenceBackend selects where execution state is durably stored
	// ("redis", "mongo", "none").
	PersistenceBackend string `yaml:"persistence_backend"`

	// DurableBackend selects the workflow engine backend ("inmem",
	// "temporal") used to run executions durably.
	DurableBackend string `yaml:"durable_backend"`

	// TelemetryBackend selects the logging/metrics/tracing implementation
	// ("clue", "noop").
	TelemetryBackend string `yaml:"telemetry_backend"`

	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Temporal TemporalConfig `yaml:"temporal"`

	// ToolConfirmationTimeout bounds how long the engine waits for a user
	// confirmation decision before treating it as denied. Zero means wait
	// indefinitely.
	ToolConfirmationTimeout time.Duration `yaml:"tool_confirmation_timeout"`
}

// RedisConfig configures the redispersist backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MongoConfig configures the mongopersist backend.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// TemporalConfig configures the durable/temporal backend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// Default returns the engine's baked-in defaults, used as the base before
// a YAML file or environment overrides are applied.
func Default() Config {
	return Config{
		MaxTicksPerExecution: 0,
		CompileMaxIterations: 10,
		DefaultModelAdapter:  "anthropic",
		PersistenceBackend:   "none",
		DurableBackend:       "inmem",
		TelemetryBackend:     "noop",
		Redis:                RedisConfig{Addr: "localhost:6379"},
		Mongo:                MongoConfig{URI: "mongodb://localhost:27017", Database: "engine"},
		Temporal:             TemporalConfig{HostPort: "localhost:7233", Namespace: "default", TaskQueue: "engine-tasks"},
	}
}

// Load reads defaults, overlays path (if non-empty and the file exists),
// then overlays ENGINE_* environment variables, in that precedence order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("engineconfig: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("engineconfig: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.MaxTicksPerExecution = envIntOr("ENGINE_MAX_TICKS_PER_EXECUTION", cfg.MaxTicksPerExecution)
	cfg.CompileMaxIterations = envIntOr("ENGINE_COMPILE_MAX_ITERATIONS", cfg.CompileMaxIterations)
	cfg.DefaultModelAdapter = envOr("ENGINE_DEFAULT_MODEL_ADAPTER", cfg.DefaultModelAdapter)
	cfg.PersistenceBackend = envOr("ENGINE_PERSISTENCE_BACKEND", cfg.PersistenceBackend)
	cfg.DurableBackend = envOr("ENGINE_DURABLE_BACKEND", cfg.DurableBackend)
	cfg.TelemetryBackend = envOr("ENGINE_TELEMETRY_BACKEND", cfg.TelemetryBackend)
	cfg.ToolConfirmationTimeout = envDurationOr("ENGINE_TOOL_CONFIRMATION_TIMEOUT", cfg.ToolConfirmationTimeout)

	cfg.Redis.Addr = envOr("ENGINE_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envOr("ENGINE_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envIntOr("ENGINE_REDIS_DB", cfg.Redis.DB)

	cfg.Mongo.URI = envOr("ENGINE_MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = envOr("ENGINE_MONGO_DATABASE", cfg.Mongo.Database)

	cfg.Temporal.HostPort = envOr("ENGINE_TEMPORAL_HOST_PORT", cfg.Temporal.HostPort)
	cfg.Temporal.Namespace = envOr("ENGINE_TEMPORAL_NAMESPACE", cfg.Temporal.Namespace)
	cfg.Temporal.TaskQueue = envOr("ENGINE_TEMPORAL_TASK_QUEUE", cfg.Temporal.TaskQueue)
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envIntOr returns the environment variable as int or a default.
func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// envDurationOr returns the environment variable as duration or a default.
func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
