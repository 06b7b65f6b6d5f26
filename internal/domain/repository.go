package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNilProduct      = errors.New("product is required")
	ErrInvalidID       = errors.New("product id must not be negative")
)

// CheckWritable rejects products that no repository may persist.
func CheckWritable(p *Product) error {
	if p == nil {
		return ErrNilProduct
	}
	if p.ID < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, p.ID)
	}
	return nil
}

// ProductRepository defines the contract for product storage.
//
// Implementations hold no state between calls besides their engine handle.
// Storage failures are reported as *StorageError; a missing record is
// reported by FindByID and Update as ErrProductNotFound and is a no-op for
// DeleteByID. Save and Update reject a negative ID with ErrInvalidID.
type ProductRepository interface {
	// Save inserts the product when its ID is zero or unknown and updates it
	// otherwise. It returns the persisted copy; the argument is not modified.
	Save(ctx context.Context, product *Product) (*Product, error)
	// Update overwrites an existing product and never creates one. The
	// existence check and the write are a single step in the engine.
	Update(ctx context.Context, product *Product) (*Product, error)
	FindByID(ctx context.Context, id int64) (*Product, error)
	// FindAll returns one page of products. The zero PageRequest returns all.
	FindAll(ctx context.Context, req PageRequest) (*Page, error)
	DeleteByID(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
}
