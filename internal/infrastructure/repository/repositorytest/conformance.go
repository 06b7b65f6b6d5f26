// Package repositorytest provides conformance tests for domain.ProductRepository implementations
package repositorytest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RepositoryFactory creates a fresh, empty repository for one test.
// Cleanup should be registered with t.Cleanup.
type RepositoryFactory func(t *testing.T) domain.ProductRepository

// RunConformanceTests runs all conformance tests against a repository implementation
func RunConformanceTests(t *testing.T, factory RepositoryFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, repo domain.ProductRepository)
	}{
		{"SaveThenFindByID", testSaveThenFindByID},
		{"SaveAssignsGeneratedID", testSaveAssignsGeneratedID},
		{"SaveDoesNotMutateArgument", testSaveDoesNotMutateArgument},
		{"SaveNil", testSaveNil},
		{"UpdateExisting", testUpdateExisting},
		{"SaveWithExplicitID", testSaveWithExplicitID},
		{"SaveRejectsNegativeID", testSaveRejectsNegativeID},
		{"UpdateOverwritesExisting", testUpdateOverwritesExisting},
		{"UpdateMissingIsNotFound", testUpdateMissingIsNotFound},
		{"UpdateAfterDeleteDoesNotRecreate", testUpdateAfterDeleteDoesNotRecreate},
		{"FindByIDNotFound", testFindByIDNotFound},
		{"DeleteThenFindByID", testDeleteThenFindByID},
		{"DeleteUnknownIsNoop", testDeleteUnknownIsNoop},
		{"CountAfterSaves", testCountAfterSaves},
		{"FindAllReturnsPersistedSet", testFindAllReturnsPersistedSet},
		{"FindAllEmpty", testFindAllEmpty},
		{"FindAllPaging", testFindAllPaging},
		{"FindAllSorting", testFindAllSorting},
		{"FindAllIsRestartable", testFindAllIsRestartable},
		{"FindAllRejectsInvalidRequest", testFindAllRejectsInvalidRequest},
		{"FindAllRejectsOverflowingRequest", testFindAllRejectsOverflowingRequest},
		{"ExistsByID", testExistsByID},
		{"ConcurrentSaves", testConcurrentSaves},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.test(t, factory(t))
		})
	}
}

// AssertSameProduct compares every field, timestamps by instant.
func AssertSameProduct(t *testing.T, want, got *domain.Product) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID, "id")
	assert.Equal(t, want.Name, got.Name, "name")
	assert.Equal(t, want.Description, got.Description, "description")
	assert.Equal(t, want.Price, got.Price, "price")
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at: want %s, got %s", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at: want %s, got %s", want.UpdatedAt, got.UpdatedAt)
}

func mustSave(t *testing.T, repo domain.ProductRepository, p *domain.Product) *domain.Product {
	t.Helper()
	saved, err := repo.Save(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, saved)
	return saved
}

func ids(items []*domain.Product) []int64 {
	out := make([]int64, 0, len(items))
	for _, p := range items {
		out = append(out, p.ID)
	}
	return out
}

func testSaveThenFindByID(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	saved := mustSave(t, repo, &domain.Product{Name: "Lamp", Description: "Desk lamp", Price: 24.5})

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	AssertSameProduct(t, saved, found)
	assert.False(t, found.CreatedAt.IsZero())
	assert.False(t, found.UpdatedAt.IsZero())
}

func testSaveAssignsGeneratedID(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	saved := mustSave(t, repo, &domain.Product{Name: "Widget"})
	assert.NotZero(t, saved.ID)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, "Widget", found.Name)

	other := mustSave(t, repo, &domain.Product{Name: "Widget"})
	assert.NotEqual(t, saved.ID, other.ID, "each new product gets its own id")
}

func testSaveDoesNotMutateArgument(t *testing.T, repo domain.ProductRepository) {
	in := &domain.Product{Name: "Kettle", Price: 30}
	saved := mustSave(t, repo, in)

	assert.Zero(t, in.ID)
	assert.True(t, in.CreatedAt.IsZero())
	assert.NotSame(t, in, saved)
}

func testSaveNil(t *testing.T, repo domain.ProductRepository) {
	_, err := repo.Save(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNilProduct)
}

func testUpdateExisting(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	saved := mustSave(t, repo, &domain.Product{Name: "Chair", Price: 80})

	// Let the clock move so updated_at can differ from created_at.
	time.Sleep(5 * time.Millisecond)

	update := saved.Clone()
	update.Name = "Armchair"
	update.Price = 120
	update.CreatedAt = time.Time{}
	updated := mustSave(t, repo, update)

	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, "Armchair", updated.Name)
	assert.True(t, saved.CreatedAt.Equal(updated.CreatedAt), "created_at is preserved across updates")
	assert.True(t, updated.UpdatedAt.After(saved.UpdatedAt), "updated_at moves forward")

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	AssertSameProduct(t, updated, found)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func testSaveWithExplicitID(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	explicit := mustSave(t, repo, &domain.Product{ID: 500, Name: "Imported"})
	assert.Equal(t, int64(500), explicit.ID)

	found, err := repo.FindByID(ctx, 500)
	require.NoError(t, err)
	AssertSameProduct(t, explicit, found)

	generated := mustSave(t, repo, &domain.Product{Name: "Fresh"})
	assert.NotEqual(t, int64(500), generated.ID, "generated ids never collide with explicit ones")

	found, err = repo.FindByID(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, "Imported", found.Name)
}

func testSaveRejectsNegativeID(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	_, err := repo.Save(ctx, &domain.Product{ID: -7, Name: "Negative", Price: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
	assert.False(t, domain.IsStorageError(err))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	generated := mustSave(t, repo, &domain.Product{Name: "After"})
	assert.Positive(t, generated.ID)
}

func testUpdateOverwritesExisting(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	saved := mustSave(t, repo, &domain.Product{Name: "Desk", Price: 200})

	time.Sleep(5 * time.Millisecond)

	change := saved.Clone()
	change.Name = "Standing desk"
	change.Description = "Adjustable"
	change.CreatedAt = time.Time{}
	updated, err := repo.Update(ctx, change)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, "Standing desk", updated.Name)
	assert.True(t, saved.CreatedAt.Equal(updated.CreatedAt), "created_at is preserved")
	assert.True(t, updated.UpdatedAt.After(saved.UpdatedAt), "updated_at moves forward")
	assert.True(t, change.CreatedAt.IsZero(), "argument is not modified")

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	AssertSameProduct(t, updated, found)
}

func testUpdateMissingIsNotFound(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	_, err := repo.Update(ctx, &domain.Product{ID: 31337, Name: "Ghost", Price: 1})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.False(t, domain.IsStorageError(err))

	_, err = repo.Update(ctx, &domain.Product{Name: "Unsaved", Price: 1})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = repo.Update(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrNilProduct)

	_, err = repo.Update(ctx, &domain.Product{ID: -1, Name: "Negative", Price: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	ok, err := repo.ExistsByID(ctx, 31337)
	require.NoError(t, err)
	assert.False(t, ok, "update never creates a product")

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testUpdateAfterDeleteDoesNotRecreate(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	saved := mustSave(t, repo, &domain.Product{Name: "Stool", Price: 15})
	require.NoError(t, repo.DeleteByID(ctx, saved.ID))

	change := saved.Clone()
	change.Name = "Bar stool"
	_, err := repo.Update(ctx, change)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = repo.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	page, err := repo.FindAll(ctx, domain.Unpaged())
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}

func testFindByIDNotFound(t *testing.T, repo domain.ProductRepository) {
	p, err := repo.FindByID(context.Background(), 424242)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.False(t, domain.IsStorageError(err))
	assert.Nil(t, p)
}

func testDeleteThenFindByID(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	saved := mustSave(t, repo, &domain.Product{Name: "Toaster"})
	kept := mustSave(t, repo, &domain.Product{Name: "Blender"})

	require.NoError(t, repo.DeleteByID(ctx, saved.ID))

	_, err := repo.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = repo.FindByID(ctx, kept.ID)
	assert.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, saved.ID), "deleting twice is a no-op")
}

func testDeleteUnknownIsNoop(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	saved := mustSave(t, repo, &domain.Product{Name: "Sofa"})

	require.NoError(t, repo.DeleteByID(ctx, 999))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	AssertSameProduct(t, saved, found)
}

func testCountAfterSaves(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	const n = 7
	for i := 0; i < n; i++ {
		mustSave(t, repo, &domain.Product{Name: fmt.Sprintf("item-%d", i)})
	}

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
}

func testFindAllReturnsPersistedSet(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	want := map[int64]*domain.Product{}
	for i := 0; i < 5; i++ {
		p := mustSave(t, repo, &domain.Product{Name: fmt.Sprintf("p-%d", i), Price: float64(i + 1)})
		want[p.ID] = p
	}
	var deleted int64
	for id := range want {
		deleted = id
		break
	}
	require.NoError(t, repo.DeleteByID(ctx, deleted))
	delete(want, deleted)

	page, err := repo.FindAll(ctx, domain.Unpaged())
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), page.Total)
	require.Len(t, page.Items, len(want))
	for _, got := range page.Items {
		expected, ok := want[got.ID]
		require.True(t, ok, "unexpected product %d", got.ID)
		AssertSameProduct(t, expected, got)
	}
}

func testFindAllEmpty(t *testing.T, repo domain.ProductRepository) {
	page, err := repo.FindAll(context.Background(), domain.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}

func testFindAllPaging(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	var all []int64
	for i := 0; i < 7; i++ {
		all = append(all, mustSave(t, repo, &domain.Product{Name: fmt.Sprintf("p-%d", i)}).ID)
	}

	var seen []int64
	for pageNo := 0; ; pageNo++ {
		page, err := repo.FindAll(ctx, domain.PageRequest{Page: pageNo, Size: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(7), page.Total)
		assert.Equal(t, pageNo, page.Page)
		assert.Equal(t, 3, page.Size)
		assert.LessOrEqual(t, len(page.Items), 3)
		seen = append(seen, ids(page.Items)...)
		if !page.HasNext() {
			break
		}
	}
	assert.Equal(t, all, seen, "pages partition the id-ordered set")

	page, err := repo.FindAll(ctx, domain.PageRequest{Page: 10, Size: 3})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(7), page.Total)
}

func testFindAllSorting(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	a := mustSave(t, repo, &domain.Product{Name: "Cog", Price: 5})
	b := mustSave(t, repo, &domain.Product{Name: "Anvil", Price: 50})
	c := mustSave(t, repo, &domain.Product{Name: "Bolt", Price: 5})
	d := mustSave(t, repo, &domain.Product{Name: "Bolt", Price: 1})

	page, err := repo.FindAll(ctx, domain.PageRequest{Sort: []domain.Order{{Field: domain.SortByName, Direction: domain.Asc}}})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, c.ID, d.ID, a.ID}, ids(page.Items))

	page, err = repo.FindAll(ctx, domain.PageRequest{Sort: []domain.Order{
		{Field: domain.SortByPrice, Direction: domain.Desc},
		{Field: domain.SortByName, Direction: domain.Asc},
	}})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, c.ID, a.ID, d.ID}, ids(page.Items))

	page, err = repo.FindAll(ctx, domain.PageRequest{Page: 1, Size: 2, Sort: []domain.Order{{Field: domain.SortByID, Direction: domain.Desc}}})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, a.ID}, ids(page.Items))
}

func testFindAllIsRestartable(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		mustSave(t, repo, &domain.Product{Name: fmt.Sprintf("p-%d", i)})
	}

	req := domain.PageRequest{Size: 2, Sort: []domain.Order{{Field: domain.SortByName, Direction: domain.Desc}}}
	first, err := repo.FindAll(ctx, req)
	require.NoError(t, err)
	second, err := repo.FindAll(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ids(first.Items), ids(second.Items))
}

func testFindAllRejectsInvalidRequest(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	_, err := repo.FindAll(ctx, domain.PageRequest{Page: -1, Size: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidPageRequest)

	_, err = repo.FindAll(ctx, domain.PageRequest{Sort: []domain.Order{{Field: "weight"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageRequest)
}

func testFindAllRejectsOverflowingRequest(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	mustSave(t, repo, &domain.Product{Name: "Only"})

	for _, req := range []domain.PageRequest{
		{Page: 1, Size: math.MaxInt},
		{Page: 3, Size: math.MaxInt / 2},
		{Size: math.MaxInt},
		{Size: domain.MaxPageSize + 1},
		{Page: math.MaxInt, Size: domain.MaxPageSize},
		{Page: math.MaxInt / 2, Size: 10, Sort: []domain.Order{{Field: domain.SortByName}}},
	} {
		page, err := repo.FindAll(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidPageRequest, "page=%d size=%d", req.Page, req.Size)
		assert.Nil(t, page)
	}

	page, err := repo.FindAll(ctx, domain.PageRequest{Size: domain.MaxPageSize})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func testExistsByID(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	saved := mustSave(t, repo, &domain.Product{Name: "Rug"})

	ok, err := repo.ExistsByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ExistsByID(ctx, saved.ID+1000)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.DeleteByID(ctx, saved.ID))
	ok, err = repo.ExistsByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testConcurrentSaves(t *testing.T, repo domain.ProductRepository) {
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan int64, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := repo.Save(ctx, &domain.Product{Name: fmt.Sprintf("c-%d", i)})
			if err != nil {
				errs <- err
				return
			}
			results <- p.ID
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	unique := map[int64]bool{}
	for id := range results {
		assert.False(t, unique[id], "duplicate id %d", id)
		unique[id] = true
	}
	assert.Len(t, unique, workers)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), count)
}
