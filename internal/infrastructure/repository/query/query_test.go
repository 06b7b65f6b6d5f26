package query

import (
	"strconv"
	"testing"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderBy(t *testing.T) {
	got, err := OrderBy(domain.Unpaged())
	require.NoError(t, err)
	assert.Equal(t, "id ASC", got)

	got, err = OrderBy(domain.PageRequest{Sort: []domain.Order{
		{Field: domain.SortByPrice, Direction: domain.Desc},
		{Field: domain.SortByName},
	}})
	require.NoError(t, err)
	assert.Equal(t, "price DESC, name ASC, id ASC", got)

	_, err = OrderBy(domain.PageRequest{Sort: []domain.Order{{Field: "price; DROP TABLE products"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageRequest)
}

func TestSelectSQL(t *testing.T) {
	dollar := func(n int) string { return "$" + strconv.Itoa(n) }

	sql, args, err := SelectSQL("products", []string{"id", "name"}, domain.Unpaged(), dollar)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM products ORDER BY id ASC", sql)
	assert.Empty(t, args)

	sql, args, err = SelectSQL("products", []string{"id"}, domain.PageRequest{Page: 3, Size: 5}, dollar)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM products ORDER BY id ASC LIMIT $1 OFFSET $2", sql)
	assert.Equal(t, []any{5, 15}, args)
}

func TestApply(t *testing.T) {
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	products := func() []*domain.Product {
		return []*domain.Product{
			{ID: 3, Name: "Cog", Price: 5, CreatedAt: base.Add(2 * time.Hour)},
			{ID: 1, Name: "Anvil", Price: 50, CreatedAt: base},
			{ID: 4, Name: "Bolt", Price: 5, CreatedAt: base.Add(3 * time.Hour)},
			{ID: 2, Name: "Bolt", Price: 1, CreatedAt: base.Add(time.Hour)},
		}
	}
	ids := func(p *domain.Page) []int64 {
		out := make([]int64, 0, len(p.Items))
		for _, item := range p.Items {
			out = append(out, item.ID)
		}
		return out
	}

	page := Apply(products(), domain.Unpaged())
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(page))
	assert.Equal(t, int64(4), page.Total)

	page = Apply(products(), domain.PageRequest{Sort: []domain.Order{{Field: domain.SortByName}}})
	assert.Equal(t, []int64{1, 2, 4, 3}, ids(page), "ties on name break on id")

	page = Apply(products(), domain.PageRequest{Sort: []domain.Order{
		{Field: domain.SortByPrice, Direction: domain.Desc},
		{Field: domain.SortByCreatedAt, Direction: domain.Desc},
	}})
	assert.Equal(t, []int64{1, 4, 3, 2}, ids(page))

	page = Apply(products(), domain.PageRequest{Page: 1, Size: 3})
	assert.Equal(t, []int64{4}, ids(page))
	assert.Equal(t, int64(4), page.Total)

	page = Apply(products(), domain.PageRequest{Page: 5, Size: 3})
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(4), page.Total)
}
