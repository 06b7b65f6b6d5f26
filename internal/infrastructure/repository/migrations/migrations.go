// Package migrations embeds the products schema for the SQL storage backends
// and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect selects the migration set
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// FS returns the migration files for dialect
func FS(dialect Dialect) (fs.FS, error) {
	switch dialect {
	case Postgres, SQLite:
		return fs.Sub(files, string(dialect))
	default:
		return nil, fmt.Errorf("unknown migration dialect: %s", dialect)
	}
}

func gooseDialect(dialect Dialect) goose.Dialect {
	if dialect == SQLite {
		return goose.DialectSQLite3
	}
	return goose.DialectPostgres
}

// Up applies every pending migration for dialect.
func Up(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) error {
	fsys, err := FS(dialect)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(gooseDialect(dialect), db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, r := range results {
		logger.InfoContext(ctx, "Migration applied",
			slog.String("dialect", string(dialect)),
			slog.Int64("version", r.Source.Version),
			slog.String("duration", r.Duration.String()),
		)
	}
	return nil
}

// Version returns the current schema version for dialect
func Version(ctx context.Context, db *sql.DB, dialect Dialect) (int64, error) {
	fsys, err := FS(dialect)
	if err != nil {
		return 0, err
	}

	provider, err := goose.NewProvider(gooseDialect(dialect), db, fsys)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return provider.GetDBVersion(ctx)
}
