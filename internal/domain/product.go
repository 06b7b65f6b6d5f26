package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidProductName  = errors.New("product name is required")
	ErrInvalidProductPrice = errors.New("product price must be positive")
)

// Product represents the product entity
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProduct creates a new, not yet persisted product with validation.
// The store assigns the ID and timestamps on Save.
func NewProduct(name, description string, price float64) (*Product, error) {
	product := &Product{
		Name:        name,
		Description: description,
		Price:       price,
	}

	if err := product.Validate(); err != nil {
		return nil, err
	}

	return product, nil
}

// Validate performs business validation on the product
func (p *Product) Validate() error {
	if p.Name == "" {
		return ErrInvalidProductName
	}
	if p.Price <= 0 {
		return ErrInvalidProductPrice
	}
	return nil
}

// IsNew reports whether the product has never been assigned an identifier.
func (p *Product) IsNew() bool {
	return p.ID == 0
}

// Clone returns a copy that shares no state with p.
func (p *Product) Clone() *Product {
	c := *p
	return &c
}

// Stamp sets the persistence timestamps for a write happening at now.
// CreatedAt is only set when it is still zero.
func (p *Product) Stamp(now time.Time) {
	now = NormalizeTime(now)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	} else {
		p.CreatedAt = NormalizeTime(p.CreatedAt)
	}
	p.UpdatedAt = now
}

// NormalizeTime truncates t to the precision every storage backend keeps.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
