// Package repository selects and opens the configured product storage engine.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/config"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/instrumented"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/memory"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/mongodb"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/postgres"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/redis"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/sqlite"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Deps carries the telemetry handed to the instrumented repository
type Deps struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger
}

// CloseFunc releases the engine's connections
type CloseFunc func() error

func noopClose() error { return nil }

// Open builds the engine named by cfg.Backend and wraps it with tracing,
// logging and metrics. Connecting and migrating are bounded by cfg.Timeout.
func Open(ctx context.Context, cfg config.StorageConfig, deps Deps) (domain.ProductRepository, CloseFunc, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var (
		repo    domain.ProductRepository
		closeFn CloseFunc = noopClose
	)

	switch cfg.Backend {
	case config.BackendMemory:
		repo = memory.NewProductRepository()

	case config.BackendPostgres:
		r, err := postgres.Open(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			ConnectTimeout: cfg.Timeout,
		}, deps.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres storage: %w", err)
		}
		repo, closeFn = r, r.Close

	case config.BackendSQLite:
		r, err := sqlite.Open(ctx, cfg.SQLite.Path, deps.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		repo, closeFn = r, r.Close

	case config.BackendMongoDB:
		r, err := mongodb.Open(ctx, mongoConfig(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("open mongodb storage: %w", err)
		}
		repo, closeFn = r, r.Close

	case config.BackendRedis:
		r, err := redis.Open(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis storage: %w", err)
		}
		repo, closeFn = r, r.Close

	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	deps.Logger.Info("Storage backend ready", slog.String("backend", cfg.Backend))

	return instrumented.NewProductRepository(repo, cfg.Backend, deps.Tracer, deps.Meter, deps.Logger), closeFn, nil
}

func mongoConfig(cfg config.StorageConfig) mongodb.Config {
	return mongodb.Config{
		URI:         cfg.MongoDB.URI,
		Database:    cfg.MongoDB.Database,
		Timeout:     cfg.Timeout,
		MaxPoolSize: cfg.MongoDB.MaxPoolSize,
	}
}
