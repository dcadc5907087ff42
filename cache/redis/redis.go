package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/autotranslate/cache"
)

// Cache is a Redis-backed cache. Keys are namespaced by the cache name so
// several logical caches can share one database.
type Cache struct {
	client *redis.Client
	prefix string
	maxAge time.Duration
}

const (
	connectionTimeout = 5 * time.Second
	flushScanCount    = 200
)

// New creates a new Redis cache from a redis:// DSN.
func New(opts ...cache.Option) (cache.RawCache, error) {
	cacheOpts := cache.NewOptions(opts...)

	redisOpts, err := redis.ParseURL(cacheOpts.DSN.String())
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		_ = client.Close()
		return nil, pingErr
	}

	return &Cache{
		client: client,
		prefix: cacheOpts.KeyPrefix(),
		maxAge: cacheOpts.MaxAge,
	}, nil
}

func (rc *Cache) key(k string) string {
	return rc.prefix + k
}

func (rc *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (rc *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = rc.maxAge
	}
	return rc.client.Set(ctx, rc.key(key), value, ttl).Err()
}

func (rc *Cache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, rc.key(key)).Err()
}

func (rc *Cache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := rc.client.Exists(ctx, rc.key(key)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Flush removes only the keys belonging to this cache.
func (rc *Cache) Flush(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", flushScanCount).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= flushScanCount {
			if err := rc.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	return rc.client.Del(ctx, batch...).Err()
}

func (rc *Cache) Close() error {
	return rc.client.Close()
}

func (rc *Cache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return rc.client.IncrBy(ctx, rc.key(key), delta).Result()
}

func (rc *Cache) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return rc.client.DecrBy(ctx, rc.key(key), delta).Result()
}
