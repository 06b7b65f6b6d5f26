// Package postgres provides a PostgreSQL-backed product repository on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/migrations"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/query"
)

// Backend is the name reported in storage errors and telemetry
const Backend = "postgres"

var productColumns = []string{"id", "name", "description", "price", "created_at", "updated_at"}

// Config holds the connection settings
type Config struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("postgres DSN cannot be empty")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("postgres max conns must not be negative")
	}
	return nil
}

// ProductRepository persists products in PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects a pool, checks it and applies the embedded migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*ProductRepository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migrations.Up(ctx, db, migrations.Postgres, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return NewProductRepository(pool), nil
}

// NewProductRepository wraps an existing pool. The schema must already exist.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool, now: time.Now}
}

// Close releases the pool
func (r *ProductRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// Save inserts or upserts a product. Explicit ids advance the identity
// sequence so that later generated ids never collide with them.
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}

	p := product.Clone()
	p.CreatedAt = time.Time{}
	p.Stamp(r.now())

	if p.IsNew() {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO products (name, description, price, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			p.Name, p.Description, p.Price, p.CreatedAt, p.UpdatedAt,
		).Scan(&p.ID)
		if err != nil {
			return nil, classify("save", err)
		}
		return p, nil
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			createdAt time.Time
			inserted  bool
		)
		err := tx.QueryRow(ctx,
			`INSERT INTO products (id, name, description, price, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name,
			   description = EXCLUDED.description,
			   price = EXCLUDED.price,
			   updated_at = EXCLUDED.updated_at
			 RETURNING created_at, (xmax = 0) AS inserted`,
			p.ID, p.Name, p.Description, p.Price, p.CreatedAt, p.UpdatedAt,
		).Scan(&createdAt, &inserted)
		if err != nil {
			return err
		}
		p.CreatedAt = createdAt.UTC()

		if inserted {
			_, err = tx.Exec(ctx,
				`SELECT setval(pg_get_serial_sequence('products', 'id'), GREATEST($1, (SELECT MAX(id) FROM products), 1))`,
				p.ID,
			)
		}
		return err
	})
	if err != nil {
		return nil, classify("save", err)
	}
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

	var createdAt time.Time
	err := r.pool.QueryRow(ctx,
		`UPDATE products
		    SET name = $2, description = $3, price = $4, updated_at = $5
		  WHERE id = $1
		 RETURNING created_at`,
		p.ID, p.Name, p.Description, p.Price, p.UpdatedAt,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, classify("update", err)
	}
	p.CreatedAt = createdAt.UTC()

	return p, nil
}

// FindByID returns one product by id
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, description, price, created_at, updated_at
		   FROM products
		  WHERE id = $1`,
		id,
	)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, classify("find_by_id", err)
	}
	return p, nil
}

// FindAll returns one page of products
func (r *ProductRepository) FindAll(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	stmt, args, err := query.SelectSQL("products", productColumns, req, func(n int) string {
		return "$" + strconv.Itoa(n)
	})
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, classify("find_all", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Product, error) {
		return scanProduct(row)
	})
	if err != nil {
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

// DeleteByID removes a product; unknown ids are ignored
func (r *ProductRepository) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return classify("delete_by_id", err)
	}
	return nil
}

// Count returns the number of stored products
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

// ExistsByID reports whether a product with id is stored
func (r *ProductRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, classify("exists_by_id", err)
	}
	return exists, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// classify maps pgx errors onto domain storage errors. SQLSTATE class 23 is
// integrity constraint violation, class 08 connection exception.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "23":
			return domain.NewConstraintError(Backend, op, err)
		case "08", "57":
			return domain.NewUnavailableError(Backend, op, err)
		}
		return domain.NewStorageError(Backend, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewUnavailableError(Backend, op, err)
	}
	return domain.NewStorageError(Backend, op, err)
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
