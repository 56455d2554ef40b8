package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingReader struct {
	calls    atomic.Int32
	products []models.Product
	// gate, when set, blocks GetAll until closed; started is signalled first.
	gate    chan struct{}
	started chan struct{}
}

func (r *countingReader) GetAll(context.Context) ([]models.Product, error) {
	r.calls.Add(1)
	if r.gate != nil {
		r.started <- struct{}{}
		<-r.gate
	}
	return r.products, nil
}

func (r *countingReader) GetByID(_ context.Context, id int) (*models.Product, error) {
	for _, p := range r.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrProductNotFound
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCache) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func newCatalog(t *testing.T, reader ProductReader) (*CachedProductRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCachedProductRepository(reader, cache.NewRedisCache(client), 5*time.Minute, zap.NewNop()), mr
}

func sampleProducts() []models.Product {
	return []models.Product{
		{ID: 1, Name: "Croissant", Price: decimal.RequireFromString("3.00"), Stock: 5},
		{ID: 2, Name: "Baguette", Price: decimal.RequireFromString("2.75"), Stock: 3},
	}
}

func TestCachedProductRepository_CachesListing(t *testing.T) {
	reader := &countingReader{products: sampleProducts()}
	repo, mr := newCatalog(t, reader)
	ctx := context.Background()

	first, err := repo.GetAll(ctx)
	require.NoError(t, err)
	second, err := repo.GetAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), reader.calls.Load())
	require.Len(t, second, 2)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.True(t, second[0].Price.Equal(decimal.RequireFromString("3.00")))
	assert.True(t, mr.Exists(CatalogKey))
	assert.Equal(t, 5*time.Minute, mr.TTL(CatalogKey))
}

func TestCachedProductRepository_InvalidateForcesRefetch(t *testing.T) {
	reader := &countingReader{products: sampleProducts()}
	repo, mr := newCatalog(t, reader)
	ctx := context.Background()

	_, err := repo.GetAll(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Invalidate(ctx))
	assert.False(t, mr.Exists(CatalogKey))

	reader.products[0].Stock = 3
	got, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), reader.calls.Load())
	assert.Equal(t, 3, got[0].Stock)
}

func TestCachedProductRepository_FillStartedBeforeInvalidateIsDiscarded(t *testing.T) {
	reader := &countingReader{
		products: sampleProducts(),
		gate:     make(chan struct{}),
		started:  make(chan struct{}, 1),
	}
	repo, mr := newCatalog(t, reader)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := repo.GetAll(ctx)
		assert.NoError(t, err)
	}()

	<-reader.started
	require.NoError(t, repo.Invalidate(ctx))
	close(reader.gate)
	<-done

	assert.False(t, mr.Exists(CatalogKey))
}

func TestCachedProductRepository_ConcurrentMissesShareOneFill(t *testing.T) {
	reader := &countingReader{
		products: sampleProducts(),
		gate:     make(chan struct{}),
		started:  make(chan struct{}, 10),
	}
	repo, _ := newCatalog(t, reader)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			products, err := repo.GetAll(ctx)
			assert.NoError(t, err)
			assert.Len(t, products, 2)
		}()
	}

	<-reader.started
	// Give the other callers time to join the in-flight fill.
	time.Sleep(50 * time.Millisecond)
	close(reader.gate)
	wg.Wait()

	assert.Equal(t, int32(1), reader.calls.Load())
}

func TestCachedProductRepository_CacheDownFallsBackToStore(t *testing.T) {
	reader := &countingReader{products: sampleProducts()}
	repo := NewCachedProductRepository(reader, brokenCache{}, time.Minute, zap.NewNop())

	products, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)

	assert.Error(t, repo.Invalidate(context.Background()))
}

func TestCachedProductRepository_GetByID(t *testing.T) {
	repo, _ := newCatalog(t, &countingReader{products: sampleProducts()})

	p, err := repo.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Baguette", p.Name)

	_, err = repo.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrProductNotFound)
}
