package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client), mr
}

func TestRedisCache_GetSetDelete(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "products")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "products", []byte(`[1,2]`), time.Minute))
	got, err := c.Get(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), got)
	assert.Equal(t, time.Minute, mr.TTL("products"))

	require.NoError(t, c.Delete(ctx, "products"))
	_, err = c.Get(ctx, "products")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "products", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "products")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Unavailable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Get(context.Background(), "products")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.Error(t, c.Ping(context.Background()))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	c, err := Connect(context.Background(), mr.Host(), port, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))
}
