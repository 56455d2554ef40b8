package db

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CatalogKey is the cache key holding the full product listing.
const CatalogKey = "products"

type CachedProductRepository struct {
	repo   ProductReader
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger

	fills singleflight.Group
	// generation is bumped on every invalidation so fills that started
	// earlier never leave their result in the cache.
	generation atomic.Uint64
}

func NewCachedProductRepository(repo ProductReader, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedProductRepository {
	return &CachedProductRepository{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// GetAll returns all products (with caching)
func (r *CachedProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	data, err := r.cache.Get(ctx, CatalogKey)
	if err == nil {
		var products []models.Product
		if err := json.Unmarshal(data, &products); err == nil {
			r.logger.Debug("📦 Cache HIT: all products")
			return products, nil
		}
		r.logger.Warn("⚠️ Discarding undecodable catalog cache entry")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("⚠️ Cache error", zap.Error(err))
	}

	r.logger.Debug("💾 Cache MISS: all products - fetching from DB")
	gen := r.generation.Load()
	v, err, _ := r.fills.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		products, err := r.repo.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		r.store(ctx, gen, products)
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Product), nil
}

func (r *CachedProductRepository) store(ctx context.Context, gen uint64, products []models.Product) {
	if r.generation.Load() != gen {
		return
	}
	data, err := json.Marshal(products)
	if err != nil {
		r.logger.Warn("⚠️ Failed to encode products for cache", zap.Error(err))
		return
	}
	if err := r.cache.Set(ctx, CatalogKey, data, r.ttl); err != nil {
		r.logger.Warn("⚠️ Failed to cache products", zap.Error(err))
		return
	}
	// An invalidation may have run between the check above and the write.
	if r.generation.Load() != gen {
		if err := r.cache.Delete(ctx, CatalogKey); err != nil {
			r.logger.Warn("⚠️ Failed to drop stale catalog entry", zap.Error(err))
		}
	}
}

// GetByID reads through to the store.
func (r *CachedProductRepository) GetByID(ctx context.Context, id int) (*models.Product, error) {
	return r.repo.GetByID(ctx, id)
}

// Invalidate discards the cached catalog. Called after every stock mutation.
func (r *CachedProductRepository) Invalidate(ctx context.Context) error {
	r.generation.Add(1)
	if err := r.cache.Delete(ctx, CatalogKey); err != nil {
		return err
	}
	r.logger.Debug("🗑️ Cache invalidated: all products")
	return nil
}
