package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/cache"
)

const (
	indexKey     = "index"
	entryPrefix  = "entry:"
	lookupPrefix = "lookup:"
)

// CacheStore keeps history in a RawCache. An index document holds the entry ids, newest first.
type CacheStore struct {
	raw     cache.RawCache
	entries cache.Cache[string, Entry]
	lookups cache.Cache[string, string]
	index   cache.Cache[string, []string]

	mu sync.Mutex
}

func NewCacheStore(raw cache.RawCache) *CacheStore {
	return &CacheStore{
		raw:     raw,
		entries: cache.NewView[string, Entry](raw, cache.Prefixed(entryPrefix)),
		lookups: cache.NewView[string, string](raw, cache.Prefixed(lookupPrefix)),
		index:   cache.NewView[string, []string](raw, nil),
	}
}

// Add stores entry, replacing an earlier entry with the same lookup.
func (s *CacheStore) Add(ctx context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.ids(ctx)
	if err != nil {
		return Entry{}, err
	}

	lookup := Lookup{From: entry.From, To: entry.To, Text: entry.Text}
	if previous, found, lookupErr := s.lookups.Get(ctx, lookup.key()); lookupErr != nil {
		return Entry{}, lookupErr
	} else if found {
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == previous })
		if err = s.entries.Delete(ctx, previous); err != nil {
			return Entry{}, err
		}
	}

	if entry.ID == "" {
		entry.ID = util.IDString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err = s.entries.Set(ctx, entry.ID, entry, 0); err != nil {
		return Entry{}, err
	}
	if err = s.lookups.Set(ctx, lookup.key(), entry.ID, 0); err != nil {
		return Entry{}, err
	}
	if err = s.index.Set(ctx, indexKey, append([]string{entry.ID}, ids...), 0); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *CacheStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found, err := s.entries.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	ids, err := s.ids(ctx)
	if err != nil {
		return err
	}
	ids = slices.DeleteFunc(ids, func(other string) bool { return other == id })

	if err = s.entries.Delete(ctx, id); err != nil {
		return err
	}
	if err = s.lookups.Delete(ctx, Lookup{From: entry.From, To: entry.To, Text: entry.Text}.key()); err != nil {
		return err
	}
	return s.index.Set(ctx, indexKey, ids, 0)
}

// Find returns the entry matching lookup, or nil.
func (s *CacheStore) Find(ctx context.Context, lookup Lookup) (*Entry, error) {
	id, found, err := s.lookups.Get(ctx, lookup.key())
	if err != nil || !found {
		return nil, err
	}
	entry, found, err := s.entries.Get(ctx, id)
	if err != nil || !found {
		return nil, err
	}
	return &entry, nil
}

func (s *CacheStore) List(ctx context.Context, offset int, limit int) ([]Entry, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}

	start, end := window(len(ids), offset, limit)
	out := make([]Entry, 0, end-start)
	for _, id := range ids[start:end] {
		entry, found, getErr := s.entries.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if found {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Clear removes every entry. The backing cache must be dedicated to history.
func (s *CacheStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.raw.Flush(ctx)
}

func (s *CacheStore) ids(ctx context.Context) ([]string, error) {
	ids, _, err := s.index.Get(ctx, indexKey)
	return ids, err
}
