package cache

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

type manager struct {
	mu     sync.Mutex
	caches map[string]RawCache
}

func NewManager() Manager {
	return &manager{caches: map[string]RawCache{}}
}

// AddCache registers cache under name. A different backend previously held
// under name is closed.
func (m *manager) AddCache(name string, cache RawCache) {
	m.mu.Lock()
	previous, found := m.caches[name]
	m.caches[name] = cache
	m.mu.Unlock()

	if found && previous != cache {
		_ = previous.Close()
	}
}

func (m *manager) GetRawCache(name string) (RawCache, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.caches[name]
	return raw, ok
}

// Names lists the registered caches, sorted.
func (m *manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// View returns a typed view of the cache registered under name.
func View[K comparable, V any](m Manager, name string, keyFunc func(K) string) (Cache[K, V], bool) {
	raw, ok := m.GetRawCache(name)
	if !ok {
		return nil, false
	}
	return NewView[K, V](raw, keyFunc), true
}

// RemoveCache unregisters and closes the cache held under name.
func (m *manager) RemoveCache(name string) error {
	m.mu.Lock()
	raw, ok := m.caches[name]
	delete(m.caches, name)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return raw.Close()
}

// Close closes every registered cache, in name order.
func (m *manager) Close() error {
	m.mu.Lock()
	caches := m.caches
	m.caches = map[string]RawCache{}
	m.mu.Unlock()

	names := make([]string, 0, len(caches))
	for name := range caches {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	for _, name := range names {
		if err := caches[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
