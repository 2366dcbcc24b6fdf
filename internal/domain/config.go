package domain

import "time"

// Config holds the complete Magpie configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Profile determines the component defaults
	Profile Profile `json:"profile" env:"MAGPIE_PROFILE"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"event_bus"`

	// Segmentation refresh settings
	Refresh RefreshConfig `json:"refresh"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" env:"MAGPIE_HOST"`
	Port         int    `json:"port" env:"MAGPIE_PORT"`
	ReadTimeout  int    `json:"read_timeout" env:"MAGPIE_READ_TIMEOUT"`   // seconds
	WriteTimeout int    `json:"write_timeout" env:"MAGPIE_WRITE_TIMEOUT"` // seconds
}

// RefreshConfig controls segmentation refresh runs.
type RefreshConfig struct {
	// Cron is a standard 5-field cron spec for scheduled refreshes.
	// Empty disables the scheduler.
	Cron string `json:"cron" env:"MAGPIE_REFRESH_CRON"`

	// MaxWorkers bounds parallel filter evaluation and scenario sweeps.
	MaxWorkers int `json:"max_workers" env:"MAGPIE_MAX_WORKERS"`

	// WindowDays is the trailing aggregation window.
	WindowDays int `json:"window_days" env:"MAGPIE_WINDOW_DAYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"MAGPIE_LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"MAGPIE_LOG_FORMAT"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" env:"MAGPIE_TRACING_ENABLED"`
	ServiceName  string `json:"service_name" env:"MAGPIE_TRACING_SERVICE"`
	ExporterType string `json:"exporter_type" env:"MAGPIE_TRACING_EXPORTER"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" env:"MAGPIE_TRACING_ENDPOINT"`
}

// Profile selects a deployment shape.
type Profile string

const (
	// ProfileStandalone runs everything in-process: SQLite + LRU + channels.
	ProfileStandalone Profile = "standalone"

	// ProfileDistributed uses PostgreSQL + Redis + NATS.
	ProfileDistributed Profile = "distributed"
)

// DefaultConfig returns a default configuration for the standalone profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile: ProfileStandalone,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./magpie.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Refresh: RefreshConfig{
			MaxWorkers: 8,
			WindowDays: DefaultWindowDays,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "magpie",
		},
	}
}

// DistributedConfig returns a configuration for the distributed profile.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileDistributed
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "magpie",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
