package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/config"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/instrumented"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/memory"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/mongodb"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func testDeps() Deps {
	return Deps{
		Tracer: tracenoop.NewTracerProvider().Tracer("test"),
		Meter:  metricnoop.NewMeterProvider().Meter("test"),
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

func TestOpenMemory(t *testing.T) {
	repo, closeFn, err := Open(context.Background(), config.StorageConfig{Backend: config.BackendMemory}, testDeps())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	wrapped, ok := repo.(*instrumented.ProductRepository)
	require.True(t, ok)
	assert.IsType(t, &memory.ProductRepository{}, wrapped.Unwrap())

	saved, err := repo.Save(context.Background(), &domain.Product{Name: "Widget", Price: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)
}

func TestOpenSQLite(t *testing.T) {
	cfg := config.StorageConfig{
		Backend: config.BackendSQLite,
		Timeout: 5 * time.Second,
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "products.db")},
	}

	repo, closeFn, err := Open(context.Background(), cfg, testDeps())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	assert.IsType(t, &sqlite.ProductRepository{}, repo.(*instrumented.ProductRepository).Unwrap())

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	tests := []config.StorageConfig{
		{Backend: "cassandra"},
		{Backend: config.BackendPostgres},
		{Backend: config.BackendMongoDB},
		{Backend: config.BackendRedis},
	}

	for _, cfg := range tests {
		t.Run(cfg.Backend, func(t *testing.T) {
			_, _, err := Open(context.Background(), cfg, testDeps())
			assert.Error(t, err)
		})
	}
}

func TestMongoConfigCarriesPoolSize(t *testing.T) {
	cfg := config.StorageConfig{
		Backend: config.BackendMongoDB,
		Timeout: 2 * time.Second,
		MongoDB: config.MongoDBConfig{URI: "mongodb://localhost:27017", Database: "catalog", MaxPoolSize: 25},
	}

	got := mongoConfig(cfg)
	assert.Equal(t, mongodb.Config{
		URI:         "mongodb://localhost:27017",
		Database:    "catalog",
		Timeout:     2 * time.Second,
		MaxPoolSize: 25,
	}, got)
	assert.NoError(t, got.Validate())
}
