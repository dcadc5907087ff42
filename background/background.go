// Package background runs the context that owns settings, preferences,
// translation history and the translator, and answers requests from every
// other context.
package background

import (
	"context"
	"fmt"
	"sync"

	"github.com/pitabwire/util"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/autotranslate/broadcast"
	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/data"
	"github.com/pitabwire/autotranslate/datastore"
	"github.com/pitabwire/autotranslate/history"
	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/preferences"
	"github.com/pitabwire/autotranslate/registry"
	"github.com/pitabwire/autotranslate/settings"
	"github.com/pitabwire/autotranslate/storage"
	"github.com/pitabwire/autotranslate/translator"
)

// Configuration is what a background context reads from the environment.
type Configuration interface {
	config.ConfigurationStorage
}

// Transport is the part of the bus the background context serves on.
type Transport interface {
	broadcast.Publisher
	Serve(ctx context.Context, dispatcher messaging.Dispatcher) error
}

// Hooks reach into the host environment. Unset hooks do nothing.
type Hooks struct {
	SetAppIcon        func(ctx context.Context, icon settings.AppIcon)
	ForgetText        func(ctx context.Context) error
	ToggleContextMenu func(ctx context.Context, enabled bool)
}

func (h Hooks) withDefaults() Hooks {
	if h.SetAppIcon == nil {
		h.SetAppIcon = func(context.Context, settings.AppIcon) {}
	}
	if h.ForgetText == nil {
		h.ForgetText = func(context.Context) error { return nil }
	}
	if h.ToggleContextMenu == nil {
		h.ToggleContextMenu = func(context.Context, bool) {}
	}
	return h
}

// Bundle is handed to every handler factory.
type Bundle struct {
	Settings    *settings.Store
	Translators *translator.Manager
	Preferences *preferences.Store
	History     history.Store
}

type Option func(*Background)

func WithHooks(hooks Hooks) Option {
	return func(b *Background) {
		b.hooks = hooks
	}
}

// WithMigrations replaces the startup migrations.
func WithMigrations(migrations ...Migration) Option {
	return func(b *Background) {
		b.migrations = migrations
	}
}

// WithModules registers translator modules in addition to the pseudo module.
func WithModules(modules ...translator.Module) Option {
	return func(b *Background) {
		b.modules = append(b.modules, modules...)
	}
}

// WithCaches uses caches instead of opening the configured storage.
func WithCaches(caches cache.Manager) Option {
	return func(b *Background) {
		b.caches = caches
	}
}

// WithHistoryStore replaces the history store picked from configuration.
func WithHistoryStore(store history.Store) Option {
	return func(b *Background) {
		b.history = store
	}
}

// WithLimiter paces calls to translation providers.
func WithLimiter(limiter translator.Limiter) Option {
	return func(b *Background) {
		b.limiter = limiter
	}
}

// Background owns the shared state of the extension.
type Background struct {
	transport  Transport
	hooks      Hooks
	migrations []Migration
	modules    []translator.Module
	limiter    translator.Limiter

	caches      cache.Manager
	ownsCaches  bool
	settings    *settings.Store
	translators *translator.Manager
	preferences *preferences.Store
	history     history.Store
	closeDB     func(ctx context.Context)

	handlers    *registry.Registry[Bundle]
	broadcaster *broadcast.Broadcaster

	startup singleflight.Group
	mu      sync.Mutex
	started bool
	closed  bool
	unwatch []settings.Unsubscribe
}

// New opens storage and loads settings. Nothing is served until Start.
func New(ctx context.Context, cfg Configuration, transport Transport, opts ...Option) (*Background, error) {
	b := &Background{
		transport:  transport,
		migrations: DefaultMigrations(),
		modules:    []translator.Module{translator.Pseudo()},
		handlers:   registry.New[Bundle](),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.hooks = b.hooks.withDefaults()

	if b.caches == nil {
		caches, err := storage.OpenAll(ctx, data.DSN(cfg.GetStorageURI()), cfg.GetStorageBucket(), nil)
		if err != nil {
			return nil, err
		}
		b.caches = caches
		b.ownsCaches = true
	}

	if err := b.open(ctx, cfg); err != nil {
		if releaseErr := b.release(ctx); releaseErr != nil {
			util.Log(ctx).WithError(releaseErr).Warn("could not release background storage")
		}
		return nil, err
	}
	return b, nil
}

func (b *Background) open(ctx context.Context, cfg Configuration) error {
	settingsCache, err := b.rawCache(storage.SettingsCache)
	if err != nil {
		return err
	}
	translationsCache, err := b.rawCache(storage.TranslationsCache)
	if err != nil {
		return err
	}
	preferencesCache, err := b.rawCache(storage.PreferencesCache)
	if err != nil {
		return err
	}

	defaults, err := settings.LoadDefaults(cfg.GetSettingsDefaultsFile())
	if err != nil {
		return err
	}

	b.settings, err = settings.NewStore(ctx, settingsCache, defaults)
	if err != nil {
		return err
	}

	b.translators = translator.NewManager(translator.ConfigFrom(b.settings.Get()), translationsCache, b.modules...)
	if b.limiter != nil {
		b.translators.Throttle(b.limiter)
	}
	b.preferences = preferences.NewStore(preferencesCache)

	if b.history != nil {
		return nil
	}

	if dsn := cfg.GetHistoryDatabaseURL(); dsn != "" {
		db, dbErr := datastore.Open(ctx, dsn)
		if dbErr != nil {
			return dbErr
		}
		b.closeDB = func(ctx context.Context) { datastore.Close(ctx, db) }

		b.history, err = history.NewSQLStore(ctx, db)
		return err
	}

	historyCache, err := b.rawCache(storage.HistoryCache)
	if err != nil {
		return err
	}
	b.history = history.NewCacheStore(historyCache)
	return nil
}

func (b *Background) rawCache(name string) (cache.RawCache, error) {
	raw, ok := b.caches.GetRawCache(name)
	if !ok {
		return nil, fmt.Errorf("storage %q is not configured", name)
	}
	return raw, nil
}

// Settings is the settings store owned by this context.
func (b *Background) Settings() *settings.Store {
	return b.settings
}

func (b *Background) Translators() *translator.Manager {
	return b.translators
}

func (b *Background) Preferences() *preferences.Store {
	return b.preferences
}

func (b *Background) History() history.Store {
	return b.history
}

// Started reports whether Start completed.
func (b *Background) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Start runs the one time startup, registers the request handlers and
// starts serving. Concurrent and repeated calls run it once.
func (b *Background) Start(ctx context.Context) error {
	_, err, _ := b.startup.Do("start", func() (any, error) {
		b.mu.Lock()
		started, closed := b.started, b.closed
		b.mu.Unlock()

		if closed {
			return nil, messaging.ErrBusClosed
		}
		if started {
			return nil, nil
		}

		if err := b.start(ctx); err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.started = true
		b.mu.Unlock()
		return nil, nil
	})
	return err
}

func (b *Background) start(ctx context.Context) error {
	systemCache, err := b.rawCache(storage.SystemCache)
	if err != nil {
		return err
	}
	if err = applyMigrations(ctx, b, systemCache, b.migrations); err != nil {
		return err
	}

	// A missing provider must not keep handlers from registering; translate
	// requests report the failure instead.
	if err = b.translators.SetConfig(ctx, translator.ConfigFrom(b.settings.Get())); err != nil {
		util.Log(ctx).WithError(err).Warn("translation scheduler is not available yet")
	}

	// The registry is one-shot and survives a failed start.
	if !b.handlers.Registered() {
		bundle := Bundle{
			Settings:    b.settings,
			Translators: b.translators,
			Preferences: b.preferences,
			History:     b.history,
		}
		if err = b.handlers.Register(ctx, bundle, Factories()); err != nil {
			return err
		}
	}

	b.watch()
	broadcaster := broadcast.Attach(b.settings, b.transport)
	b.mu.Lock()
	b.broadcaster = broadcaster
	b.mu.Unlock()

	if err = b.transport.Serve(ctx, b.handlers); err != nil {
		b.detach()
		return fmt.Errorf("could not serve background requests: %w", err)
	}

	util.Log(ctx).WithField("operations", len(b.handlers.Operations())).Info("background context started")
	return nil
}

// Dispatch runs a request in process, as if it arrived over the bus.
func (b *Background) Dispatch(ctx context.Context, operation string, payload []byte) (any, error) {
	return b.handlers.Dispatch(ctx, operation, payload)
}

// Close stops watching settings and releases storage.
func (b *Background) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.detach()
	if b.settings != nil {
		b.settings.Close()
	}

	return b.release(ctx)
}

// detach drops the settings watchers and the broadcaster.
func (b *Background) detach() {
	b.mu.Lock()
	unwatch := b.unwatch
	b.unwatch = nil
	broadcaster := b.broadcaster
	b.broadcaster = nil
	b.mu.Unlock()

	for _, fn := range unwatch {
		fn()
	}
	if broadcaster != nil {
		broadcaster.Detach()
	}
}

func (b *Background) release(ctx context.Context) error {
	if b.closeDB != nil {
		b.closeDB(ctx)
	}
	if !b.ownsCaches || b.caches == nil {
		return nil
	}
	if err := b.caches.Close(); err != nil {
		return fmt.Errorf("could not close storage: %w", err)
	}
	return nil
}
