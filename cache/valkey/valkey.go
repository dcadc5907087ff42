// Package valkey stores cache entries on a Valkey server. Entries of one
// named cache share a key prefix, so Flush leaves other caches alone.
package valkey

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/pitabwire/autotranslate/cache"
)

const (
	pingTimeout = 5 * time.Second
	scanBatch   = 200
)

type Cache struct {
	client valkey.Client
	prefix string
	maxAge time.Duration
}

// New dials the server named by the cache DSN. valkey:// is treated as an
// alias of redis://.
func New(opts ...cache.Option) (cache.RawCache, error) {
	o := cache.NewOptions(opts...)

	dsn := o.DSN
	if dsn.IsValkey() {
		var err error
		if dsn, err = dsn.WithScheme("redis"); err != nil {
			return nil, err
		}
	}

	clientOpts, err := valkey.ParseURL(dsn.String())
	if err != nil {
		return nil, err
	}
	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, err
	}

	return &Cache{client: client, prefix: o.KeyPrefix(), maxAge: o.MaxAge}, nil
}

func (c *Cache) do(ctx context.Context, cmd valkey.Completed) valkey.ValkeyResult {
	return c.client.Do(ctx, cmd)
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.do(ctx, c.client.B().Get().Key(c.prefix+key).Build()).AsBytes()
	switch {
	case valkey.IsValkeyNil(err):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

// expirySeconds rounds ttl up to the whole seconds EX accepts. Zero means
// no expiry.
func (c *Cache) expirySeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = c.maxAge
	}
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Second - 1) / time.Second)
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := c.client.B().Set().Key(c.prefix + key).Value(valkey.BinaryString(value))
	if seconds := c.expirySeconds(ttl); seconds > 0 {
		return c.do(ctx, set.ExSeconds(seconds).Build()).Error()
	}
	return c.do(ctx, set.Build()).Error()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.do(ctx, c.client.B().Del().Key(c.prefix+key).Build()).Error()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.do(ctx, c.client.B().Exists().Key(c.prefix+key).Build()).AsInt64()
	return n > 0, err
}

// Flush deletes the keys under this cache's prefix, one scan page at a time.
func (c *Cache) Flush(ctx context.Context) error {
	cursor := uint64(0)
	for {
		page, err := c.do(ctx, c.client.B().Scan().Cursor(cursor).
			Match(c.prefix+"*").Count(scanBatch).Build()).AsScanEntry()
		if err != nil {
			return err
		}
		if len(page.Elements) > 0 {
			if err = c.do(ctx, c.client.B().Del().Key(page.Elements...).Build()).Error(); err != nil {
				return err
			}
		}
		if page.Cursor == 0 {
			return nil
		}
		cursor = page.Cursor
	}
}

func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

func (c *Cache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return c.do(ctx, c.client.B().Incrby().Key(c.prefix+key).Increment(delta).Build()).AsInt64()
}

func (c *Cache) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return c.Increment(ctx, key, -delta)
}
