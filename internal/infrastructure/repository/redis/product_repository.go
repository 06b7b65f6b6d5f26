// Package redis provides a Redis-backed product repository.
//
// Layout, for a key prefix P:
//
//	P:seq        INCR counter used for generated ids
//	P:item:<id>  JSON encoded product
//	P:ids        sorted set of ids, all scores 0, members zero padded to
//	             19 digits so rank order is numeric id order
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/query"
	"github.com/redis/go-redis/v9"
)

// Backend is the name reported in storage errors and telemetry
const Backend = "redis"

const maxTxRetries = 5

// advanceSeq raises KEYS[1] to ARGV[1] when it is lower.
var advanceSeq = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local want = tonumber(ARGV[1])
if want > cur then
  redis.call('SET', KEYS[1], want)
end
return 0
`)

type productRecord struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

func toRecord(p *domain.Product) productRecord {
	return productRecord{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt.UnixMilli(),
		UpdatedAt:   p.UpdatedAt.UnixMilli(),
	}
}

func (r productRecord) toDomain() *domain.Product {
	return &domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

// ProductRepository persists products in Redis
type ProductRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// Open connects to the Redis server at redisURL and checks the connection.
func Open(ctx context.Context, redisURL, prefix string) (*ProductRepository, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewProductRepository(client, prefix), nil
}

// NewProductRepository uses an existing client. An empty prefix defaults to "products".
func NewProductRepository(client *redis.Client, prefix string) *ProductRepository {
	if prefix == "" {
		prefix = "products"
	}
	return &ProductRepository{client: client, prefix: prefix, now: time.Now}
}

// Close closes the client
func (r *ProductRepository) Close() error {
	return r.client.Close()
}

func (r *ProductRepository) seqKey() string {
	return r.prefix + ":seq"
}

func (r *ProductRepository) idsKey() string {
	return r.prefix + ":ids"
}

func (r *ProductRepository) itemKey(id int64) string {
	return r.prefix + ":item:" + strconv.FormatInt(id, 10)
}

// idMember encodes a non-negative id as a sorted set member. Equal scores
// order members lexicographically, which for fixed width digits is numeric.
func idMember(id int64) string {
	return fmt.Sprintf("%019d", id)
}

// Save inserts or replaces a product.
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}

	p := product.Clone()
	p.CreatedAt = time.Time{}
	p.Stamp(r.now())

	if p.IsNew() {
		id, err := r.client.Incr(ctx, r.seqKey()).Result()
		if err != nil {
			return nil, classify("save", err)
		}
		p.ID = id
	} else if err := advanceSeq.Run(ctx, r.client, []string{r.seqKey()}, p.ID).Err(); err != nil {
		return nil, classify("save", err)
	}

	if err := r.write(ctx, p, false); err != nil {
		return nil, classify("save", err)
	}
	return p, nil
}

// Update overwrites an existing product. A missing key is ErrProductNotFound.
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if err := domain.CheckWritable(product); err != nil {
		return nil, err
	}
	if product.IsNew() {
		return nil, domain.ErrProductNotFound
	}

	p := product.Clone()
	p.CreatedAt = time.Time{}
	p.Stamp(r.now())

	if err := r.write(ctx, p, true); err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, err
		}
		return nil, classify("update", err)
	}
	return p, nil
}

// write stores p, keeping the created_at of a previous version. The read and
// the write run under WATCH, so a concurrent save or delete of the same id
// restarts the transaction. With mustExist a missing key fails with
// ErrProductNotFound.
func (r *ProductRepository) write(ctx context.Context, p *domain.Product, mustExist bool) error {
	key := r.itemKey(p.ID)
	txf := func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if mustExist {
				return domain.ErrProductNotFound
			}
		case err != nil:
			return err
		default:
			var prev productRecord
			if err := json.Unmarshal(existing, &prev); err != nil {
				return fmt.Errorf("decode product %d: %w", p.ID, err)
			}
			p.CreatedAt = time.UnixMilli(prev.CreatedAt).UTC()
		}

		data, err := json.Marshal(toRecord(p))
		if err != nil {
			return fmt.Errorf("encode product %d: %w", p.ID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, r.idsKey(), redis.Z{Score: 0, Member: idMember(p.ID)})
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	return err
}

// FindByID returns one product by id
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	data, err := r.client.Get(ctx, r.itemKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrProductNotFound
		}
		return nil, classify("find_by_id", err)
	}

	var rec productRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, domain.NewStorageError(Backend, "find_by_id", fmt.Errorf("decode product %d: %w", id, err))
	}
	return rec.toDomain(), nil
}

// FindAll returns one page of products. Orderings on id alone are served
// from the sorted set; any other ordering loads every product and sorts in
// process.
func (r *ProductRepository) FindAll(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	orders := req.Orders()
	if len(orders) == 1 && orders[0].Field == domain.SortByID {
		return r.findAllByID(ctx, req, orders[0].Descending())
	}

	ids, err := r.client.ZRange(ctx, r.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, classify("find_all", err)
	}
	items, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	return query.Apply(items, req), nil
}

func (r *ProductRepository) findAllByID(ctx context.Context, req domain.PageRequest, desc bool) (*domain.Page, error) {
	var start, stop int64 = 0, -1
	if req.Paged() {
		start = int64(req.Offset())
		stop = start + int64(req.Size) - 1
	}

	ids, err := r.client.ZRangeArgs(ctx, redis.ZRangeArgs{
		Key:   r.idsKey(),
		Start: start,
		Stop:  stop,
		Rev:   desc,
	}).Result()
	if err != nil {
		return nil, classify("find_all", err)
	}

	items, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
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

// load fetches products for ids in order, skipping ids deleted in between.
func (r *ProductRepository) load(ctx context.Context, ids []string) ([]*domain.Product, error) {
	items := make([]*domain.Product, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, domain.NewStorageError(Backend, "find_all", fmt.Errorf("corrupt id %q: %w", id, err))
		}
		keys[i] = r.itemKey(n)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify("find_all", err)
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec productRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, domain.NewStorageError(Backend, "find_all", fmt.Errorf("decode product: %w", err))
		}
		items = append(items, rec.toDomain())
	}
	return items, nil
}

// DeleteByID removes a product; unknown ids are ignored
func (r *ProductRepository) DeleteByID(ctx context.Context, id int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.itemKey(id))
		pipe.ZRem(ctx, r.idsKey(), idMember(id))
		return nil
	})
	if err != nil {
		return classify("delete_by_id", err)
	}
	return nil
}

// Count returns the number of stored products
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.client.ZCard(ctx, r.idsKey()).Result()
	if err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

// ExistsByID reports whether a product with id is stored
func (r *ProductRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	n, err := r.client.Exists(ctx, r.itemKey(id)).Result()
	if err != nil {
		return false, classify("exists_by_id", err)
	}
	return n > 0, nil
}

// IsConnectionError reports whether err means the server could not be reached
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ETIMEDOUT:
			return true
		}
	}
	return false
}

func classify(op string, err error) error {
	if IsConnectionError(err) {
		return domain.NewUnavailableError(Backend, op, err)
	}
	return domain.NewStorageError(Backend, op, err)
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
