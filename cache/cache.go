package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pitabwire/autotranslate/internal"
)

// RawCache is a byte oriented backend. A ttl of zero falls back to the
// backend's configured max age.
type RawCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
	Close() error
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Decrement(ctx context.Context, key string, delta int64) (int64, error)
}

// Cache is a typed view over a RawCache. Views share their backend with
// other views, so flushing and closing stay on the RawCache.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool, error)
	Set(ctx context.Context, key K, value V, ttl time.Duration) error
	Delete(ctx context.Context, key K) error
	Exists(ctx context.Context, key K) (bool, error)
}

// Prefixed places string keys under prefix.
func Prefixed(prefix string) func(string) string {
	return func(key string) string {
		return prefix + key
	}
}

type view[K comparable, V any] struct {
	raw RawCache
	key func(K) string
}

// NewView returns a typed view of raw. Keys are rendered with keyFunc, or
// with %v when keyFunc is nil.
func NewView[K comparable, V any](raw RawCache, keyFunc func(K) string) Cache[K, V] {
	if keyFunc == nil {
		keyFunc = func(k K) string {
			return fmt.Sprintf("%v", k)
		}
	}
	return &view[K, V]{raw: raw, key: keyFunc}
}

func (v *view[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var value V

	raw, found, err := v.raw.Get(ctx, v.key(key))
	if err != nil || !found {
		return value, found, err
	}

	if err = internal.Unmarshal(raw, &value); err != nil {
		var zero V
		return zero, false, fmt.Errorf("cache entry %s is corrupt: %w", v.key(key), err)
	}
	return value, true, nil
}

func (v *view[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	raw, err := internal.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache entry %s: %w", v.key(key), err)
	}
	return v.raw.Set(ctx, v.key(key), raw, ttl)
}

func (v *view[K, V]) Delete(ctx context.Context, key K) error {
	return v.raw.Delete(ctx, v.key(key))
}

func (v *view[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	return v.raw.Exists(ctx, v.key(key))
}
