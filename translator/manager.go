package translator

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/pitabwire/util"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/autotranslate/cache"
)

// Manager owns the registered modules and the scheduler built for the
// current configuration. The scheduler is built lazily; concurrent
// callers share a single build.
type Manager struct {
	translations cache.RawCache
	limiter      Limiter

	mu         sync.Mutex
	modules    map[string]Module
	cfg        Config
	current    Scheduler
	generation uint64

	builds singleflight.Group
}

// NewManager registers modules and uses translations, when not nil, to cache results.
func NewManager(cfg Config, translations cache.RawCache, modules ...Module) *Manager {
	m := &Manager{
		translations: translations,
		modules:      map[string]Module{},
		cfg:          cfg,
	}
	for _, module := range modules {
		m.modules[module.Name] = module
	}
	return m
}

// Register adds or replaces a module. Replacing the selected module drops
// the current scheduler.
func (m *Manager) Register(module Module) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modules[module.Name] = module
	if module.Name == m.cfg.Module {
		m.invalidateLocked()
	}
}

// Modules lists the registered module names, sorted.
func (m *Manager) Modules() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.modules))
	for name := range m.modules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Limiter paces provider calls per module.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Throttle paces every provider call through l. It applies to schedulers
// built afterwards.
func (m *Manager) Throttle(l Limiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiter = l
	m.invalidateLocked()
}

func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Capabilities returns what the selected module declares. No provider is created.
func (m *Manager) Capabilities() (Capabilities, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	module, ok := m.modules[m.cfg.Module]
	if !ok {
		return Capabilities{}, fmt.Errorf("%w: %q", ErrUnknownModule, m.cfg.Module)
	}
	return module.Capabilities, nil
}

// SetConfig replaces the configuration and rebuilds the scheduler.
func (m *Manager) SetConfig(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	m.cfg = cfg
	m.invalidateLocked()
	m.mu.Unlock()

	_, err := m.Scheduler(ctx)
	return err
}

func (m *Manager) invalidateLocked() {
	m.current = nil
	m.generation++
}

// Scheduler returns the scheduler for the current configuration, building it if needed.
func (m *Manager) Scheduler(ctx context.Context) (Scheduler, error) {
	m.mu.Lock()
	if m.current != nil {
		current := m.current
		m.mu.Unlock()
		return current, nil
	}
	generation := m.generation
	m.mu.Unlock()

	built, err, _ := m.builds.Do(strconv.FormatUint(generation, 10), func() (any, error) {
		return m.build(ctx, generation)
	})
	if err != nil {
		return nil, err
	}
	return built.(Scheduler), nil
}

func (m *Manager) build(ctx context.Context, generation uint64) (Scheduler, error) {
	m.mu.Lock()
	if m.current != nil && m.generation == generation {
		current := m.current
		m.mu.Unlock()
		return current, nil
	}
	cfg := m.cfg
	limiter := m.limiter
	module, ok := m.modules[cfg.Module]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, cfg.Module)
	}

	provider, err := module.Factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSchedulerYet, err)
	}

	s := newScheduler(cfg, provider, m.translations)
	s.limiter = limiter

	m.mu.Lock()
	if m.generation == generation {
		m.current = s
	}
	m.mu.Unlock()

	util.Log(ctx).WithField("module", cfg.Module).WithField("cache", cfg.Scheduler.UseCache).Debug("translation scheduler built")
	return s, nil
}

// Translate runs one translation through the current scheduler.
func (m *Manager) Translate(ctx context.Context, text string, from string, to string) (string, error) {
	s, err := m.Scheduler(ctx)
	if err != nil {
		return "", err
	}
	return s.Translate(ctx, text, from, to)
}

// ClearCache drops every cached translation.
func (m *Manager) ClearCache(ctx context.Context) error {
	if m.translations == nil {
		return nil
	}
	return m.translations.Flush(ctx)
}
