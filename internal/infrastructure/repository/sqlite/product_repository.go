// Package sqlite provides a SQLite-backed product repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/migrations"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/query"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Backend is the name reported in storage errors and telemetry
const Backend = "sqlite"

var productColumns = []string{"id", "name", "description", "price", "created_at", "updated_at"}

// ProductRepository persists products in SQLite.
type ProductRepository struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database file at path and applies the embedded migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*ProductRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrations.Up(ctx, db, migrations.SQLite, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &ProductRepository{db: db, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (r *ProductRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save inserts or upserts a product.
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}

	p := product.Clone()
	p.CreatedAt = time.Time{}
	p.Stamp(r.now())

	var id any
	if !p.IsNew() {
		id = p.ID
	}

	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO products (id, name, description, price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   price = excluded.price,
		   updated_at = excluded.updated_at
		 RETURNING id, created_at`,
		id,
		p.Name,
		p.Description,
		p.Price,
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	).Scan(&p.ID, &createdAt)
	if err != nil {
		return nil, classify("save", err)
	}
	p.CreatedAt = fromMillis(createdAt)

	return p, nil
}

// Update overwrites an existing product. A missing row is ErrProductNotFound.
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}
	if product.IsNew() {
		return nil, domain.ErrProductNotFound
	}

	p := product.Clone()
	p.CreatedAt = time.Time{}
	p.Stamp(r.now())

	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE products
		    SET name = ?, description = ?, price = ?, updated_at = ?
		  WHERE id = ?
		 RETURNING created_at`,
		p.Name,
		p.Description,
		p.Price,
		toMillis(p.UpdatedAt),
		p.ID,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, classify("update", err)
	}
	p.CreatedAt = fromMillis(createdAt)

	return p, nil
}

// FindByID returns one product by id.
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, price, created_at, updated_at
		   FROM products
		  WHERE id = ?`,
		id,
	)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, classify("find_by_id", err)
	}
	return p, nil
}

// FindAll returns one page of products.
func (r *ProductRepository) FindAll(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	stmt, args, err := query.SelectSQL("products", productColumns, req, func(int) string { return "?" })
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify("find_all", err)
	}
	defer rows.Close()

	items := []*domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, classify("find_all", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("find_all", err)
	}

	total := int64(len(items))
	if req.Paged() {
		total, err = r.Count(ctx)
		if err != nil {
			return nil, err
		}
	}
	return domain.NewPage(items, total, req), nil
}

// DeleteByID removes a product; unknown ids are ignored.
func (r *ProductRepository) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return classify("delete_by_id", err)
	}
	return nil
}

// Count returns the number of stored products.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

// ExistsByID reports whether a product with id is stored.
func (r *ProductRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, classify("exists_by_id", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p         domain.Product
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func classify(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3lib.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3lib.SQLITE_CONSTRAINT_NOTNULL,
			sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			return domain.NewConstraintError(Backend, op, err)
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED, sqlite3lib.SQLITE_CANTOPEN:
			return domain.NewUnavailableError(Backend, op, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewUnavailableError(Backend, op, err)
	}
	return domain.NewStorageError(Backend, op, err)
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
