// Package ratelimiter throttles calls to translation providers with one
// token bucket per key.
package ratelimiter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/pitabwire/autotranslate/config"
)

const (
	defaultRequestsPerSecond = 5
	defaultBurstSize         = 1
	defaultCleanupInterval   = 5 * time.Minute
	defaultEntryTTL          = 10 * time.Minute
	defaultMaxEntries        = 1000
)

type Config struct {
	RequestsPerSecond float64
	BurstSize         int
	CleanupInterval   time.Duration
	EntryTTL          time.Duration
	MaxEntries        int
}

func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: defaultRequestsPerSecond,
		BurstSize:         defaultBurstSize,
		CleanupInterval:   defaultCleanupInterval,
		EntryTTL:          defaultEntryTTL,
		MaxEntries:        defaultMaxEntries,
	}
}

// FromConfig returns nil when throttling is disabled.
func FromConfig(cfg config.ConfigurationRateLimit) *KeyedLimiter {
	if cfg == nil || cfg.GetTranslatorRequestsPerSecond() <= 0 {
		return nil
	}
	c := DefaultConfig()
	c.RequestsPerSecond = cfg.GetTranslatorRequestsPerSecond()
	c.BurstSize = cfg.GetTranslatorBurst()
	return NewKeyedLimiter(c)
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

// KeyedLimiter applies token bucket limits independently per key, usually
// the translator module name.
type KeyedLimiter struct {
	mu      sync.RWMutex
	entries map[string]*limiterEntry
	config  Config

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewKeyedLimiter creates a keyed limiter and starts evicting idle keys.
func NewKeyedLimiter(cfg *Config) *KeyedLimiter {
	k := &KeyedLimiter{
		entries: make(map[string]*limiterEntry),
		config:  normalizeConfig(cfg),
		stopCh:  make(chan struct{}),
	}

	go k.cleanupLoop()
	return k
}

// Allow consumes a token for key without waiting.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.entry(key).limiter.Allow()
}

// Wait blocks until key has a token or ctx is done.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if err := k.entry(key).limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit for %s: %w", normalizeKey(key), err)
	}
	return nil
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.entries)
}

// Close stops the cleanup goroutine.
func (k *KeyedLimiter) Close() error {
	k.stopOnce.Do(func() {
		close(k.stopCh)
	})
	return nil
}

func normalizeConfig(cfg *Config) Config {
	if cfg == nil {
		return *DefaultConfig()
	}

	result := *cfg
	if result.RequestsPerSecond <= 0 {
		result.RequestsPerSecond = defaultRequestsPerSecond
	}
	if result.BurstSize <= 0 {
		result.BurstSize = defaultBurstSize
	}
	if result.CleanupInterval <= 0 {
		result.CleanupInterval = defaultCleanupInterval
	}
	if result.EntryTTL <= 0 {
		result.EntryTTL = defaultEntryTTL
	}
	if result.MaxEntries <= 0 {
		result.MaxEntries = defaultMaxEntries
	}
	return result
}

func normalizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	return key
}

func (k *KeyedLimiter) entry(key string) *limiterEntry {
	key = normalizeKey(key)

	k.mu.RLock()
	entry, found := k.entries[key]
	k.mu.RUnlock()

	if !found {
		k.mu.Lock()
		entry, found = k.entries[key]
		if !found {
			entry = &limiterEntry{
				limiter: rate.NewLimiter(rate.Limit(k.config.RequestsPerSecond), k.config.BurstSize),
			}
			k.entries[key] = entry
			k.evictIfNeededLocked(key)
		}
		k.mu.Unlock()
	}

	entry.lastAccess.Store(time.Now().UnixNano())
	return entry
}

func (k *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(k.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.cleanupExpired()
		case <-k.stopCh:
			return
		}
	}
}

func (k *KeyedLimiter) cleanupExpired() {
	cutoff := time.Now().Add(-k.config.EntryTTL).UnixNano()

	k.mu.Lock()
	defer k.mu.Unlock()

	for key, entry := range k.entries {
		if entry.lastAccess.Load() < cutoff {
			delete(k.entries, key)
		}
	}
}

// evictIfNeededLocked drops the least recently used keys other than keep.
func (k *KeyedLimiter) evictIfNeededLocked(keep string) {
	for len(k.entries) > k.config.MaxEntries {
		oldestKey := ""
		oldest := time.Now().UnixNano()
		for key, entry := range k.entries {
			if key == keep {
				continue
			}
			if last := entry.lastAccess.Load(); last <= oldest {
				oldest = last
				oldestKey = key
			}
		}
		if oldestKey == "" {
			return
		}
		delete(k.entries, oldestKey)
	}
}
