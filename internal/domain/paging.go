package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidPageRequest = errors.New("invalid page request")

// MaxPageSize caps PageRequest.Size.
const MaxPageSize = 1000

// SortField names a sortable product attribute
type SortField string

const (
	SortByID        SortField = "id"
	SortByName      SortField = "name"
	SortByPrice     SortField = "price"
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

// Valid reports whether f is a known sort field
func (f SortField) Valid() bool {
	switch f {
	case SortByID, SortByName, SortByPrice, SortByCreatedAt, SortByUpdatedAt:
		return true
	}
	return false
}

// SortDirection is the direction of an Order
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// Order is one sort key
type Order struct {
	Field     SortField
	Direction SortDirection
}

// Descending reports whether o sorts in descending order
func (o Order) Descending() bool {
	return o.Direction == Desc
}

// ParseOrder parses "field" or "field,direction" as used by the sort query parameter.
func ParseOrder(s string) (Order, error) {
	field, dir, _ := strings.Cut(strings.TrimSpace(s), ",")
	o := Order{
		Field:     SortField(strings.ToLower(strings.TrimSpace(field))),
		Direction: SortDirection(strings.ToLower(strings.TrimSpace(dir))),
	}
	if o.Direction == "" {
		o.Direction = Asc
	}
	if !o.Field.Valid() {
		return Order{}, fmt.Errorf("%w: unknown sort field %q", ErrInvalidPageRequest, field)
	}
	if o.Direction != Asc && o.Direction != Desc {
		return Order{}, fmt.Errorf("%w: unknown sort direction %q", ErrInvalidPageRequest, dir)
	}
	return o, nil
}

// PageRequest selects a window of products. Page is zero-based and a zero
// Size means unpaged.
type PageRequest struct {
	Page int
	Size int
	Sort []Order
}

// Unpaged returns a request for every product ordered by id.
func Unpaged() PageRequest {
	return PageRequest{}
}

// Validate checks bounds and sort keys
func (r PageRequest) Validate() error {
	if r.Page < 0 {
		return fmt.Errorf("%w: page must not be negative", ErrInvalidPageRequest)
	}
	if r.Size < 0 {
		return fmt.Errorf("%w: size must not be negative", ErrInvalidPageRequest)
	}
	if r.Size > MaxPageSize {
		return fmt.Errorf("%w: size must not exceed %d", ErrInvalidPageRequest, MaxPageSize)
	}
	if r.Size == 0 && r.Page > 0 {
		return fmt.Errorf("%w: page requires a size", ErrInvalidPageRequest)
	}
	// Offset must fit in an int, and start+Size as well.
	if r.Size > 0 && r.Page > (math.MaxInt-r.Size)/r.Size {
		return fmt.Errorf("%w: page %d is out of range", ErrInvalidPageRequest, r.Page)
	}
	for _, o := range r.Sort {
		if !o.Field.Valid() {
			return fmt.Errorf("%w: unknown sort field %q", ErrInvalidPageRequest, o.Field)
		}
		if o.Direction != "" && o.Direction != Asc && o.Direction != Desc {
			return fmt.Errorf("%w: unknown sort direction %q", ErrInvalidPageRequest, o.Direction)
		}
	}
	return nil
}

// Paged reports whether the request limits the result window
func (r PageRequest) Paged() bool {
	return r.Size > 0
}

// Offset is the number of records skipped before the window. It is only
// meaningful for a request that passed Validate.
func (r PageRequest) Offset() int {
	return r.Page * r.Size
}

// Orders returns the effective sort keys. Empty directions default to asc
// and id asc is appended as the last key unless id is already present, so
// the ordering is total.
func (r PageRequest) Orders() []Order {
	orders := make([]Order, 0, len(r.Sort)+1)
	hasID := false
	for _, o := range r.Sort {
		if o.Direction == "" {
			o.Direction = Asc
		}
		if o.Field == SortByID {
			hasID = true
		}
		orders = append(orders, o)
	}
	if !hasID {
		orders = append(orders, Order{Field: SortByID, Direction: Asc})
	}
	return orders
}

// Page is one window of products
type Page struct {
	Items []*Product
	Total int64
	Page  int
	Size  int
}

// NewPage builds a Page for req
func NewPage(items []*Product, total int64, req PageRequest) *Page {
	if items == nil {
		items = []*Product{}
	}
	return &Page{
		Items: items,
		Total: total,
		Page:  req.Page,
		Size:  req.Size,
	}
}

// TotalPages is the number of pages of Size needed to cover Total.
// An unpaged result counts as a single page.
func (p *Page) TotalPages() int {
	if p.Size <= 0 {
		return 1
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether a later page exists
func (p *Page) HasNext() bool {
	return p.Page+1 < p.TotalPages()
}
