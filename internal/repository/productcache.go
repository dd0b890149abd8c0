package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/product"
)

const (
	productKeyPrefix = "product:"
	productListKey   = "products:all"
)

var _ product.Repository = (*CachedProductRepository)(nil)

// CachedProductRepository is a read-through Redis cache in front of a
// product.Repository. Entries live for a short TTL and are invalidated on
// catalog writes. Stock quantities in cached reads may lag by up to the TTL;
// order placement never trusts them, the debit inside the order transaction
// is the authoritative stock check.
type CachedProductRepository struct {
	inner product.Repository
	rdb   *redis.Client
	ttl   time.Duration
	lg    *zap.Logger
}

// NewCachedProductRepository wraps inner with a Redis read-through cache.
func NewCachedProductRepository(inner product.Repository, rdb *redis.Client, ttl time.Duration, lg *zap.Logger) *CachedProductRepository {
	return &CachedProductRepository{inner: inner, rdb: rdb, ttl: ttl, lg: lg}
}

// GetByID returns the cached product when fresh, falling back to the inner
// repository. Cache faults degrade to direct reads.
func (r *CachedProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	key := productKeyPrefix + id

	payload, err := r.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var p product.Product
		if err := json.Unmarshal(payload, &p); err == nil {
			return &p, nil
		}
		r.lg.Debug("dropping undecodable cache entry", zap.String("key", key))
		r.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		r.lg.Debug("product cache read failed", zap.String("key", key), zap.Error(err))
	}

	p, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, p)
	return p, nil
}

// List returns the cached catalog when fresh, falling back to the inner
// repository.
func (r *CachedProductRepository) List(ctx context.Context) ([]product.Product, error) {
	payload, err := r.rdb.Get(ctx, productListKey).Bytes()
	if err == nil {
		var list []product.Product
		if err := json.Unmarshal(payload, &list); err == nil {
			return list, nil
		}
		r.rdb.Del(ctx, productListKey)
	} else if !errors.Is(err, redis.Nil) {
		r.lg.Debug("product cache read failed", zap.String("key", productListKey), zap.Error(err))
	}

	list, err := r.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	r.store(ctx, productListKey, list)
	return list, nil
}

// Create writes through and invalidates the catalog listing.
func (r *CachedProductRepository) Create(ctx context.Context, p *product.Product) error {
	if err := r.inner.Create(ctx, p); err != nil {
		return err
	}
	r.invalidate(ctx, productListKey)
	return nil
}

// Update writes through and invalidates the product and the listing.
func (r *CachedProductRepository) Update(ctx context.Context, p *product.Product) error {
	if err := r.inner.Update(ctx, p); err != nil {
		return err
	}
	r.invalidate(ctx, productKeyPrefix+p.ID, productListKey)
	return nil
}

// Delete writes through and invalidates the product and the listing.
func (r *CachedProductRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, productKeyPrefix+id, productListKey)
	return nil
}

func (r *CachedProductRepository) store(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		r.lg.Debug("product cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *CachedProductRepository) invalidate(ctx context.Context, keys ...string) {
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.lg.Debug("product cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
