package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/repositorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRepositoryConformance(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set, skipping PostgreSQL tests")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repositorytest.RunConformanceTests(t, func(t *testing.T) domain.ProductRepository {
		ctx := context.Background()
		repo, err := Open(ctx, Config{DSN: dsn, MaxConns: 4}, logger)
		require.NoError(t, err)

		_, err = repo.pool.Exec(ctx, `TRUNCATE products RESTART IDENTITY`)
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = repo.Close()
		})
		return repo
	})
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{DSN: "postgres://localhost/db", MaxConns: -1}.Validate())
	assert.NoError(t, Config{DSN: "postgres://localhost/db"}.Validate())
}

func TestClassify(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	err := classify("save", unique)
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr, "the driver error stays reachable")

	err = classify("count", &pgconn.PgError{Code: "08006"})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	err = classify("count", &pgconn.PgError{Code: "42P01"})
	assert.True(t, domain.IsStorageError(err))
	assert.NotErrorIs(t, err, domain.ErrConstraintViolation)

	err = classify("find_all", context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	err = classify("find_all", errors.New("boom"))
	assert.True(t, domain.IsStorageError(err))
}
