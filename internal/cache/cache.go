package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
