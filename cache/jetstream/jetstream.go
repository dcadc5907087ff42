package jetstream

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pitabwire/autotranslate/cache"
)

// Cache is a JetStream-backed cache implementation using the NATS KeyValue store.
// Entries expire with the bucket max age; per entry ttl values are ignored.
type Cache struct {
	conn   *nats.Conn
	client nats.KeyValue
}

// New connects to NATS and opens (or creates) the key value bucket named after the cache.
func New(opts ...cache.Option) (cache.RawCache, error) {
	cacheOpts := cache.NewOptions(opts...)

	natsConn, err := nats.Connect(cacheOpts.DSN.String())
	if err != nil {
		return nil, err
	}

	client, err := openBucket(natsConn, cacheOpts)
	if err != nil {
		natsConn.Close()
		return nil, err
	}

	return &Cache{
		conn:   natsConn,
		client: client,
	}, nil
}

func openBucket(natsConn *nats.Conn, cacheOpts *cache.Options) (nats.KeyValue, error) {
	js, err := natsConn.JetStream()
	if err != nil {
		return nil, err
	}

	client, err := js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket: cacheOpts.Name,
		TTL:    cacheOpts.MaxAge,
	})
	if err != nil {
		var apiErr *nats.APIError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode != nats.JSErrCodeStreamNameInUse {
			return nil, err
		}

		client, err = js.KeyValue(cacheOpts.Name)
		if err != nil {
			return nil, err
		}
	}

	if _, err = client.Status(); err != nil {
		return nil, err
	}
	return client, nil
}

// encodeKey maps arbitrary keys onto the restricted NATS key alphabet.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (jc *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	resp, err := jc.client.Get(encodeKey(key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return resp.Value(), true, nil
}

func (jc *Cache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	_, err := jc.client.Put(encodeKey(key), value)
	return err
}

func (jc *Cache) Delete(_ context.Context, key string) error {
	err := jc.client.Delete(encodeKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (jc *Cache) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := jc.Get(ctx, key)
	return found, err
}

func (jc *Cache) Flush(_ context.Context) error {
	keys, err := jc.client.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}

	for _, key := range keys {
		if err = jc.client.Delete(key); err != nil {
			return err
		}
	}

	return nil
}

func (jc *Cache) Close() error {
	jc.conn.Close()
	return nil
}

func isRevisionConflict(err error) bool {
	var apiErr *nats.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
	}
	return false
}

// Increment updates a decimal counter with optimistic concurrency on the entry revision.
func (jc *Cache) Increment(_ context.Context, key string, delta int64) (int64, error) {
	encoded := encodeKey(key)
	for {
		entry, err := jc.client.Get(encoded)
		if errors.Is(err, nats.ErrKeyNotFound) {
			_, createErr := jc.client.Create(encoded, []byte(strconv.FormatInt(delta, 10)))
			if errors.Is(createErr, nats.ErrKeyExists) {
				continue
			}
			if createErr != nil {
				return 0, createErr
			}
			return delta, nil
		} else if err != nil {
			return 0, err
		}

		currentVal, err := strconv.ParseInt(string(entry.Value()), 10, 64)
		if err != nil {
			return 0, err
		}
		newVal := currentVal + delta

		_, err = jc.client.Update(encoded, []byte(strconv.FormatInt(newVal, 10)), entry.Revision())
		if isRevisionConflict(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return newVal, nil
	}
}

func (jc *Cache) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return jc.Increment(ctx, key, -delta)
}
