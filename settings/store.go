package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/messaging"
)

const defaultStoreKey = "config"

// PersistenceError reports that a new tree could not be written. The
// store keeps the previous tree and notifies no subscriber.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("settings %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == messaging.ErrPersistence
}

// Callback receives the committed tree and the one it replaced.
type Callback func(ctx context.Context, next Tree, prev Tree)

// Unsubscribe removes a subscription. Calling it again, or after Close, does nothing.
type Unsubscribe func()

type subscription struct {
	callback Callback
	watched  []Section
}

func (s *subscription) matches(changed []Section) bool {
	if len(s.watched) == 0 {
		return len(changed) > 0
	}
	for _, section := range s.watched {
		if slices.Contains(changed, section) {
			return true
		}
	}
	return false
}

type Option func(*Store)

// WithKey sets the backend key the tree is stored under.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// Store is the observable, persisted configuration of the background context.
type Store struct {
	backend  cache.RawCache
	key      string
	defaults Tree

	// updateMu serializes diff, persist and notify.
	updateMu sync.Mutex

	mu      sync.RWMutex
	current Tree
	subs    map[uint64]*subscription
	nextID  uint64
	closed  bool
}

// NewStore loads the persisted tree from backend, overlaying it on defaults.
func NewStore(ctx context.Context, backend cache.RawCache, defaults Tree, opts ...Option) (*Store, error) {
	s := &Store{
		backend:  backend,
		key:      defaultStoreKey,
		defaults: defaults,
		subs:     map[uint64]*subscription{},
	}
	for _, opt := range opts {
		opt(s)
	}

	current := defaults
	raw, found, err := backend.Get(ctx, s.key)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	if found {
		if err = json.Unmarshal(raw, &current); err != nil {
			util.Log(ctx).WithError(err).Warn("stored settings are unreadable, falling back to defaults")
			current = defaults
		}
	}
	s.current = current
	return s, nil
}

// Get returns the current snapshot.
func (s *Store) Get() Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Revision is the number of committed updates seen by the backend.
func (s *Store) Revision() uint64 {
	return s.Get().Revision
}

// Defaults returns the tree Reset restores.
func (s *Store) Defaults() Tree {
	return s.defaults
}

// Update replaces the sections set in p, persists the result and notifies
// the subscriptions watching a changed section. Callbacks run before
// Update returns and must not call Update themselves.
func (s *Store) Update(ctx context.Context, p Partial) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	prev := s.Get()
	next := prev.Merge(p)

	changed := next.Changed(prev)
	if len(changed) == 0 {
		return nil
	}

	return s.commit(ctx, "update", prev, next, changed)
}

// Reset restores the defaults. Every subscription fires as if every
// section changed.
func (s *Store) Reset(ctx context.Context) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	prev := s.Get()
	return s.commit(ctx, "reset", prev, s.defaults, AllSections())
}

func (s *Store) commit(ctx context.Context, op string, prev Tree, next Tree, changed []Section) error {
	next.Revision = prev.Revision + 1

	raw, err := json.Marshal(next)
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}

	if err = s.backend.Set(ctx, s.key, raw, 0); err != nil {
		util.Log(ctx).WithError(err).WithField("op", op).Error("could not persist settings")
		return &PersistenceError{Op: op, Err: err}
	}

	s.mu.Lock()
	s.current = next
	subs := make([]*subscription, 0, len(s.subs))
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.matches(changed) {
			sub.callback(ctx, next, prev)
		}
	}
	return nil
}

// OnUpdate registers callback for changes to any of sections, or to any
// section when none are given.
func (s *Store) OnUpdate(callback Callback, sections ...Section) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	s.nextID++
	id := s.nextID
	s.subs[id] = &subscription{callback: callback, watched: slices.Clone(sections)}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

// Close drops every subscription. The backend is owned by the caller.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = map[uint64]*subscription{}
}
