package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/repositorytest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepository(t *testing.T, redisURL string) *ProductRepository {
	t.Helper()
	prefix := fmt.Sprintf("products_test:%d", time.Now().UnixNano())

	repo, err := Open(context.Background(), redisURL, prefix)
	require.NoError(t, err)

	t.Cleanup(func() {
		keys, _ := repo.client.Keys(context.Background(), prefix+":*").Result()
		if len(keys) > 0 {
			repo.client.Del(context.Background(), keys...)
		}
		_ = repo.Close()
	})
	return repo
}

func TestProductRepositoryConformance(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	repositorytest.RunConformanceTests(t, func(t *testing.T) domain.ProductRepository {
		return openTestRepository(t, redisURL)
	})
}

func TestLargeIDsKeepNumericOrder(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}
	repo := openTestRepository(t, redisURL)
	ctx := context.Background()

	// Above 2^53 neighbouring ids are not distinct as float64 scores.
	ids := []int64{1<<53 + 1, 1 << 53, 1<<53 + 2, 10}
	for _, id := range ids {
		_, err := repo.Save(ctx, &domain.Product{ID: id, Name: "big", Price: 1})
		require.NoError(t, err)
	}

	page, err := repo.FindAll(ctx, domain.Unpaged())
	require.NoError(t, err)
	var got []int64
	for _, p := range page.Items {
		got = append(got, p.ID)
	}
	assert.Equal(t, []int64{10, 1 << 53, 1<<53 + 1, 1<<53 + 2}, got)

	page, err = repo.FindAll(ctx, domain.PageRequest{Size: 1, Sort: []domain.Order{{Field: domain.SortByID, Direction: domain.Desc}}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(1<<53+2), page.Items[0].ID)
}

func TestKeys(t *testing.T) {
	repo := NewProductRepository(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	t.Cleanup(func() { _ = repo.Close() })

	assert.Equal(t, "products:seq", repo.seqKey())
	assert.Equal(t, "products:ids", repo.idsKey())
	assert.Equal(t, "products:item:42", repo.itemKey(42))
}

func TestIDMemberOrdersNumerically(t *testing.T) {
	ids := []int64{0, 9, 10, 1 << 53, 1<<53 + 1, math.MaxInt64}
	for i := 1; i < len(ids); i++ {
		assert.Less(t, idMember(ids[i-1]), idMember(ids[i]), "%d vs %d", ids[i-1], ids[i])
	}
	assert.Equal(t, "0000000000000000042", idMember(42))
	assert.Len(t, idMember(math.MaxInt64), 19)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(redis.Nil))
	assert.False(t, IsConnectionError(context.Canceled))
	assert.True(t, IsConnectionError(redis.ErrClosed))
	assert.True(t, IsConnectionError(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
	assert.False(t, IsConnectionError(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")))
}

func TestUnreachableServerReturnsUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewProductRepository(client, "unreachable")
	t.Cleanup(func() { _ = repo.Close() })

	_, err := repo.Count(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestRecordRoundTrip(t *testing.T) {
	p := &domain.Product{ID: 9, Name: "Lamp", Description: "Desk", Price: 12.5}
	p.Stamp(time.Date(2026, time.June, 1, 8, 0, 0, 123000000, time.UTC))

	repositorytest.AssertSameProduct(t, p, toRecord(p).toDomain())
}
