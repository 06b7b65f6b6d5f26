package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/query"
)

// Backend is the name reported in storage errors and telemetry
const Backend = "memory"

// ProductRepository is an in-memory implementation of domain.ProductRepository
type ProductRepository struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	lastID   int64
	now      func() time.Time
}

// NewProductRepository creates a new in-memory product repository
func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[int64]domain.Product),
		now:      time.Now,
	}
}

// Save stores a new product or replaces an existing one
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError(Backend, "save", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := *product
	if p.IsNew() {
		r.lastID++
		p.ID = r.lastID
	} else if p.ID > r.lastID {
		r.lastID = p.ID
	}

	if existing, ok := r.products[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = time.Time{}
	}
	p.Stamp(r.now())

	r.products[p.ID] = p
	return &p, nil
}

// Update replaces a stored product and fails with ErrProductNotFound when
// the id is unknown
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError(Backend, "update", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.products[product.ID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}

	p := *product
	p.CreatedAt = existing.CreatedAt
	p.Stamp(r.now())

	r.products[p.ID] = p
	return &p, nil
}

// FindByID retrieves a product by ID
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError(Backend, "find_by_id", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	product, exists := r.products[id]
	if !exists {
		return nil, domain.ErrProductNotFound
	}
	return &product, nil
}

// FindAll retrieves one page of products
func (r *ProductRepository) FindAll(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError(Backend, "find_all", err)
	}

	r.mu.RLock()
	products := make([]*domain.Product, 0, len(r.products))
	for _, product := range r.products {
		p := product
		products = append(products, &p)
	}
	r.mu.RUnlock()

	return query.Apply(products, req), nil
}

// DeleteByID removes a product; unknown ids are ignored
func (r *ProductRepository) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError(Backend, "delete_by_id", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.products, id)
	return nil
}

// Count returns the number of stored products
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStorageError(Backend, "count", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.products)), nil
}

// ExistsByID reports whether a product with id is stored
func (r *ProductRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStorageError(Backend, "exists_by_id", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.products[id]
	return exists, nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
