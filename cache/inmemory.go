package cache

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

type inMemoryCacheItem struct {
	value      []byte
	expiration time.Time
}

func (i *inMemoryCacheItem) isExpired(now time.Time) bool {
	if i.expiration.IsZero() {
		return false
	}
	return now.After(i.expiration)
}

// InMemoryCache is a process local RawCache. It backs the mem:// storage scheme and tests.
type InMemoryCache struct {
	mu         sync.Mutex
	items      map[string]*inMemoryCacheItem
	maxAge     time.Duration
	stopClean  chan struct{}
	closeOnce  sync.Once
	cleanupInt time.Duration
}

const defaultCleanupInterval = 5 * time.Minute

const int64Size = 8

// NewInMemoryCache creates a new in-memory cache.
func NewInMemoryCache(opts ...Option) RawCache {
	cacheOpts := NewOptions(opts...)

	c := &InMemoryCache{
		items:      make(map[string]*inMemoryCacheItem),
		maxAge:     cacheOpts.MaxAge,
		stopClean:  make(chan struct{}),
		cleanupInt: defaultCleanupInterval,
	}

	go c.startCleanup()

	return c
}

func (c *InMemoryCache) startCleanup() {
	ticker := time.NewTicker(c.cleanupInt)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopClean:
			return
		}
	}
}

func (c *InMemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if item.isExpired(now) {
			delete(c.items, key)
		}
	}
}

// load returns a live item, evicting it when expired. Callers hold mu.
func (c *InMemoryCache) load(key string) (*inMemoryCacheItem, bool) {
	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if item.isExpired(time.Now()) {
		delete(c.items, key)
		return nil, false
	}
	return item, true
}

func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.load(key)
	if !ok {
		return nil, false, nil
	}

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.maxAge
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	item := &inMemoryCacheItem{value: stored}
	if ttl > 0 {
		item.expiration = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.load(key)
	return ok, nil
}

func (c *InMemoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]*inMemoryCacheItem)
	c.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *InMemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopClean)
	})
	return nil
}

// Increment atomically increments a big endian int64 counter.
func (c *InMemoryCache) Increment(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current int64
	var expiration time.Time
	if item, ok := c.load(key); ok {
		expiration = item.expiration
		if len(item.value) >= int64Size {
			current = int64(binary.BigEndian.Uint64(item.value)) //nolint:gosec // counter round trip
		}
	}

	next := current + delta
	buf := make([]byte, int64Size)
	binary.BigEndian.PutUint64(buf, uint64(next)) //nolint:gosec // counter round trip

	c.items[key] = &inMemoryCacheItem{value: buf, expiration: expiration}
	return next, nil
}

func (c *InMemoryCache) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return c.Increment(ctx, key, -delta)
}
