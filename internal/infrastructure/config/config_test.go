package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Server.DurationMilliseconds)
	assert.Equal(t, "localhost:4317", cfg.OTLP.Endpoint)
	assert.Equal(t, "products-api", cfg.OTLP.ServiceName)
	assert.True(t, cfg.OTLP.ExportEnabled)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, int32(10), cfg.Storage.Postgres.MaxConns)
	assert.Equal(t, uint64(100), cfg.Storage.MongoDB.MaxPoolSize)
	assert.Equal(t, "products", cfg.Storage.Redis.KeyPrefix)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("HTTP_DURATION_MS_METRIC", "true")
	t.Setenv("OTEL_EXPORT_ENABLED", "false")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/products")
	t.Setenv("POSTGRES_MAX_CONNS", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Server.DurationMilliseconds)
	assert.False(t, cfg.OTLP.ExportEnabled)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/products", cfg.Storage.Postgres.DSN)
	assert.Equal(t, int32(4), cfg.Storage.Postgres.MaxConns)
}

func TestLoadMongoDBConfig(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "mongodb")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("MONGODB_DATABASE", "catalog")
	t.Setenv("MONGODB_MAX_POOL_SIZE", "25")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendMongoDB, cfg.Storage.Backend)
	assert.Equal(t, "catalog", cfg.Storage.MongoDB.Database)
	assert.Equal(t, uint64(25), cfg.Storage.MongoDB.MaxPoolSize)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"STORAGE_BACKEND": "cassandra"}},
		{name: "postgres without dsn", env: map[string]string{"STORAGE_BACKEND": "postgres"}},
		{name: "mongodb without uri", env: map[string]string{"STORAGE_BACKEND": "mongodb"}},
		{name: "redis without url", env: map[string]string{"STORAGE_BACKEND": "redis"}},
		{name: "bad duration", env: map[string]string{"SERVER_SHUTDOWN_TIMEOUT": "soon"}},
		{name: "negative mongodb pool size", env: map[string]string{"MONGODB_MAX_POOL_SIZE": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
