// Package mongodb provides a MongoDB-backed product repository.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Backend is the name reported in storage errors and telemetry
const Backend = "mongodb"

const (
	productsCollection = "products"
	countersCollection = "counters"
	productsCounterID  = "products"
)

// Config holds the connection settings
type Config struct {
	URI         string
	Database    string
	Timeout     time.Duration
	MaxPoolSize uint64
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("URI cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	return nil
}

type productDocument struct {
	ID          int64     `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Price       float64   `bson:"price"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d productDocument) toDomain() *domain.Product {
	return &domain.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// sortFields maps sort fields to document keys
var sortFields = map[domain.SortField]string{
	domain.SortByID:        "_id",
	domain.SortByName:      "name",
	domain.SortByPrice:     "price",
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
}

// ProductRepository persists products in a MongoDB collection. Ids come
// from a sequence document in the counters collection.
type ProductRepository struct {
	client   *mongo.Client
	products *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// Open connects to MongoDB and checks the connection
func Open(ctx context.Context, cfg Config) (*ProductRepository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb config: %w", err)
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.Timeout > 0 {
		opts.SetConnectTimeout(cfg.Timeout).SetServerSelectionTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return NewProductRepository(client, client.Database(cfg.Database)), nil
}

// NewProductRepository uses db from an already connected client
func NewProductRepository(client *mongo.Client, db *mongo.Database) *ProductRepository {
	return &ProductRepository{
		client:   client,
		products: db.Collection(productsCollection),
		counters: db.Collection(countersCollection),
		now:      time.Now,
	}
}

// Close disconnects the client
func (r *ProductRepository) Close() error {
	if r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Save inserts or upserts a product
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}

	p := product.Clone()
	p.CreatedAt = time.Time{}
	p.Stamp(r.now())

	if p.IsNew() {
		id, err := r.nextID(ctx)
		if err != nil {
			return nil, classify("save", err)
		}
		p.ID = id
	} else if err := r.advanceSequence(ctx, p.ID); err != nil {
		return nil, classify("save", err)
	}

	update := bson.M{
		"$set": bson.M{
			"name":        p.Name,
			"description": p.Description,
			"price":       p.Price,
			"updated_at":  p.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": p.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc productDocument
	err := r.products.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, update, opts).Decode(&doc)
	if err != nil {
		return nil, classify("save", err)
	}
	return doc.toDomain(), nil
}

// Update overwrites an existing document without upserting
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}
	if product.IsNew() {
		return nil, domain.ErrProductNotFound
	}

	updatedAt := domain.NormalizeTime(r.now())
	update := bson.M{
		"$set": bson.M{
			"name":        product.Name,
			"description": product.Description,
			"price":       product.Price,
			"updated_at":  updatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc productDocument
	err := r.products.FindOneAndUpdate(ctx, bson.M{"_id": product.ID}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		return nil, classify("update", err)
	}
	return doc.toDomain(), nil
}

func (r *ProductRepository) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": productsCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

// advanceSequence raises the id sequence to at least id.
func (r *ProductRepository) advanceSequence(ctx context.Context, id int64) error {
	_, err := r.counters.UpdateOne(ctx,
		bson.M{"_id": productsCounterID},
		bson.M{"$max": bson.M{"seq": id}},
		options.Update().SetUpsert(true),
	)
	return err
}

// FindByID returns one product by id
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	var doc productDocument
	err := r.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		return nil, classify("find_by_id", err)
	}
	return doc.toDomain(), nil
}

// FindAll returns one page of products
func (r *ProductRepository) FindAll(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sort := bson.D{}
	for _, o := range req.Orders() {
		dir := 1
		if o.Descending() {
			dir = -1
		}
		sort = append(sort, bson.E{Key: sortFields[o.Field], Value: dir})
	}

	opts := options.Find().SetSort(sort)
	if req.Paged() {
		opts.SetSkip(int64(req.Offset())).SetLimit(int64(req.Size))
	}

	cursor, err := r.products.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, classify("find_all", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("find_all", err)
	}

	items := make([]*domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toDomain())
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
	if _, err := r.products.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return classify("delete_by_id", err)
	}
	return nil
}

// Count returns the number of stored products
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

// ExistsByID reports whether a product with id is stored
func (r *ProductRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	n, err := r.products.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, classify("exists_by_id", err)
	}
	return n > 0, nil
}

func classify(op string, err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return domain.NewConstraintError(Backend, op, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return domain.NewUnavailableError(Backend, op, err)
	default:
		return domain.NewStorageError(Backend, op, err)
	}
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
