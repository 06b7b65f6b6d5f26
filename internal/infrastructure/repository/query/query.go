// Package query turns a domain.PageRequest into engine-level ordering and
// windowing: ORDER BY/LIMIT clauses for SQL engines and an in-process
// sort-and-slice for engines without server-side ordering.
package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/mrops-br/product-store/internal/domain"
)

// columns maps sort fields to column names. Only these names ever reach SQL text.
var columns = map[domain.SortField]string{
	domain.SortByID:        "id",
	domain.SortByName:      "name",
	domain.SortByPrice:     "price",
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
}

// Column returns the storage column for a sort field
func Column(f domain.SortField) (string, error) {
	col, ok := columns[f]
	if !ok {
		return "", fmt.Errorf("%w: unknown sort field %q", domain.ErrInvalidPageRequest, f)
	}
	return col, nil
}

// OrderBy renders the ORDER BY clause for req, without the keyword.
func OrderBy(req domain.PageRequest) (string, error) {
	orders := req.Orders()
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		col, err := Column(o.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Descending() {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	return strings.Join(parts, ", "), nil
}

// SelectSQL renders a full SELECT over table for req. Placeholders for LIMIT
// and OFFSET are produced by placeholder(n), n starting at 1.
func SelectSQL(table string, selectColumns []string, req domain.PageRequest, placeholder func(n int) string) (string, []any, error) {
	orderBy, err := OrderBy(req)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s ORDER BY %s", strings.Join(selectColumns, ", "), table, orderBy)

	var args []any
	if req.Paged() {
		fmt.Fprintf(&b, " LIMIT %s OFFSET %s", placeholder(1), placeholder(2))
		args = append(args, req.Size, req.Offset())
	}
	return b.String(), args, nil
}

// Compare orders two products by the effective sort keys of req.
func Compare(req domain.PageRequest) func(a, b *domain.Product) int {
	orders := req.Orders()
	return func(a, b *domain.Product) int {
		for _, o := range orders {
			c := compareField(a, b, o.Field)
			if o.Descending() {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
}

func compareField(a, b *domain.Product, f domain.SortField) int {
	switch f {
	case domain.SortByName:
		return cmp.Compare(a.Name, b.Name)
	case domain.SortByPrice:
		return cmp.Compare(a.Price, b.Price)
	case domain.SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case domain.SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return cmp.Compare(a.ID, b.ID)
	}
}

// Apply sorts products in place by req and returns the requested page.
func Apply(products []*domain.Product, req domain.PageRequest) *domain.Page {
	slices.SortStableFunc(products, Compare(req))

	total := int64(len(products))
	if !req.Paged() {
		return domain.NewPage(products, total, req)
	}

	start := min(req.Offset(), len(products))
	end := min(start+req.Size, len(products))
	return domain.NewPage(products[start:end], total, req)
}
