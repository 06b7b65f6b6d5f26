package mongodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/repositorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestProductRepositoryConformance(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping MongoDB tests")
	}

	repositorytest.RunConformanceTests(t, func(t *testing.T) domain.ProductRepository {
		ctx := context.Background()
		dbName := fmt.Sprintf("products_test_%d", time.Now().UnixNano())

		repo, err := Open(ctx, Config{URI: uri, Database: dbName, Timeout: 5 * time.Second})
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = repo.client.Database(dbName).Drop(context.Background())
			_ = repo.Close()
		})
		return repo
	})
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{URI: "mongodb://localhost"}.Validate())
	assert.NoError(t, Config{URI: "mongodb://localhost", Database: "products"}.Validate())
}

func TestClassify(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, classify("save", dup), domain.ErrConstraintViolation)

	assert.ErrorIs(t, classify("count", mongo.ErrClientDisconnected), domain.ErrStorageUnavailable)
	assert.ErrorIs(t, classify("count", context.DeadlineExceeded), domain.ErrStorageUnavailable)

	err := classify("find_all", errors.New("boom"))
	assert.True(t, domain.IsStorageError(err))
	assert.NotErrorIs(t, err, domain.ErrStorageUnavailable)
}
