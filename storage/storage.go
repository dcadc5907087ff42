// Package storage opens the RawCache backend selected by a storage DSN.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/cache/jetstream"
	"github.com/pitabwire/autotranslate/cache/redis"
	"github.com/pitabwire/autotranslate/cache/valkey"
	"github.com/pitabwire/autotranslate/data"
)

// Names of the logical caches a background context keeps.
const (
	SettingsCache     = "settings"
	PreferencesCache  = "preferences"
	TranslationsCache = "translations"
	HistoryCache      = "history"
	SystemCache       = "system"
)

// Open returns the backend matching the DSN scheme:
// mem:// (or empty), redis://, valkey:// and nats://.
// A zero maxAge falls back to the max_age query parameter of the DSN.
func Open(ctx context.Context, dsn data.DSN, name string, maxAge time.Duration) (cache.RawCache, error) {
	if maxAge == 0 {
		maxAge = dsn.MaxAge(0)
	}
	opts := []cache.Option{cache.WithDSN(dsn), cache.WithName(name), cache.WithMaxAge(maxAge)}

	var (
		raw cache.RawCache
		err error
	)

	backend := dsn.Backend()
	switch backend {
	case data.BackendMemory:
		raw = cache.NewInMemoryCache(opts...)
	case data.BackendRedis:
		raw, err = redis.New(opts...)
	case data.BackendValkey:
		raw, err = valkey.New(opts...)
	case data.BackendNats:
		raw, err = jetstream.New(opts...)
	case data.BackendPostgres, data.BackendUnknown:
		return nil, fmt.Errorf("unsupported storage uri: %q", dsn.Redacted())
	}
	if err != nil {
		return nil, fmt.Errorf("could not open %s storage: %w", name, err)
	}

	util.Log(ctx).
		WithField("cache", name).
		WithField("backend", backend.String()).
		WithField("max_age", maxAge.String()).
		Debug("storage backend opened")
	return raw, nil
}

// OpenAll opens one backend per logical cache and registers them on a cache manager.
// On failure every cache opened so far is closed again.
func OpenAll(ctx context.Context, dsn data.DSN, bucket string, maxAges map[string]time.Duration) (cache.Manager, error) {
	mgr := cache.NewManager()

	for _, name := range []string{SettingsCache, PreferencesCache, TranslationsCache, HistoryCache, SystemCache} {
		raw, err := Open(ctx, dsn, bucket+"_"+name, maxAges[name])
		if err != nil {
			util.CloseAndLogOnError(ctx, mgr)
			return nil, err
		}
		mgr.AddCache(name, raw)
	}

	return mgr, nil
}
