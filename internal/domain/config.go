package domain

import (
	"os"
	"strconv"
)

// Config holds the complete tariffd configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// DefaultConfig returns a single-node configuration: SQLite storage,
// in-memory cache, channel event bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./tariffd.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "tariffd",
		},
	}
}

// LoadConfig returns the default configuration with TARIFFD_* environment
// overrides applied.
func LoadConfig() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("TARIFFD_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("TARIFFD_PORT"); v > 0 {
		cfg.Server.Port = v
	}

	if v := os.Getenv("TARIFFD_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("TARIFFD_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("TARIFFD_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := envInt("TARIFFD_POSTGRES_PORT"); v > 0 {
		cfg.Repository.PostgresPort = v
	}
	if v := os.Getenv("TARIFFD_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("TARIFFD_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("TARIFFD_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("TARIFFD_POSTGRES_SSLMODE"); v != "" {
		cfg.Repository.PostgresSSLMode = v
	}

	if v := os.Getenv("TARIFFD_CACHE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("TARIFFD_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.EnableTwoPhase = true
		cfg.Cache.LocalMaxSize = 1000
	}
	if v := os.Getenv("TARIFFD_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}

	if v := os.Getenv("TARIFFD_BUS"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("TARIFFD_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("TARIFFD_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	if v := os.Getenv("TARIFFD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if os.Getenv("TARIFFD_TRACING") == "true" {
		cfg.Tracing.Enabled = true
	}

	return cfg
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}
