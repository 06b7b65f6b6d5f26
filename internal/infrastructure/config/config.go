package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongoDB  = "mongodb"
	BackendRedis    = "redis"
)

type Config struct {
	Server  ServerConfig
	OTLP    OTLPConfig
	Storage StorageConfig
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT"             envDefault:"8080"`
	Host            string        `env:"SERVER_HOST"             envDefault:"0.0.0.0"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// DurationMilliseconds adds a millisecond request duration histogram
	// next to the seconds-based one from otelhttp.
	DurationMilliseconds bool `env:"HTTP_DURATION_MS_METRIC" envDefault:"false"`
}

type OTLPConfig struct {
	Endpoint      string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName   string `env:"OTEL_SERVICE_NAME"           envDefault:"products-api"`
	Environment   string `env:"OTEL_ENVIRONMENT"            envDefault:"development"`
	ExportEnabled bool   `env:"OTEL_EXPORT_ENABLED"         envDefault:"true"`
}

type StorageConfig struct {
	Backend  string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	Timeout  time.Duration `env:"STORAGE_TIMEOUT" envDefault:"5s"`
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	MongoDB  MongoDBConfig
	Redis    RedisConfig
}

type PostgresConfig struct {
	DSN      string `env:"POSTGRES_DSN"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
}

type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" envDefault:"products.db"`
}

type MongoDBConfig struct {
	URI         string `env:"MONGODB_URI"`
	Database    string `env:"MONGODB_DATABASE" envDefault:"products"`
	MaxPoolSize uint64 `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
}

type RedisConfig struct {
	URL       string `env:"REDIS_URL"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"products"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected storage backend has what it needs
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	return c.Storage.Validate()
}

// Validate checks the storage section
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the %s backend", c.Backend)
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("SQLITE_PATH is required for the %s backend", c.Backend)
		}
	case BackendMongoDB:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("MONGODB_URI is required for the %s backend", c.Backend)
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Backend)
	}
	return nil
}
