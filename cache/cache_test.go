package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/autotranslate/cache"
)

type InMemorySuite struct {
	suite.Suite
	raw cache.RawCache
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.raw = cache.NewInMemoryCache(cache.WithName("test"))
}

func (s *InMemorySuite) TearDownTest() {
	s.Require().NoError(s.raw.Close())
}

func (s *InMemorySuite) TestBasicOperations() {
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value []byte
		ttl   time.Duration
	}{
		{"simple value", "key1", []byte("value1"), 0},
		{"with ttl", "key2", []byte("value2"), time.Hour},
		{"empty value", "key3", []byte{}, 0},
		{"large value", "key4", make([]byte, 1024), 0},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Require().NoError(s.raw.Set(ctx, tt.key, tt.value, tt.ttl))

			value, found, err := s.raw.Get(ctx, tt.key)
			s.Require().NoError(err)
			s.True(found)
			s.Equal(tt.value, value)

			exists, err := s.raw.Exists(ctx, tt.key)
			s.Require().NoError(err)
			s.True(exists)

			s.Require().NoError(s.raw.Delete(ctx, tt.key))
			_, found, err = s.raw.Get(ctx, tt.key)
			s.Require().NoError(err)
			s.False(found)
		})
	}
}

func (s *InMemorySuite) TestExpiry() {
	ctx := context.Background()

	s.Require().NoError(s.raw.Set(ctx, "short", []byte("x"), 30*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	_, found, err := s.raw.Get(ctx, "short")
	s.Require().NoError(err)
	s.False(found)

	exists, err := s.raw.Exists(ctx, "short")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *InMemorySuite) TestMaxAgeAppliesToZeroTTL() {
	ctx := context.Background()
	raw := cache.NewInMemoryCache(cache.WithMaxAge(30 * time.Millisecond))
	defer raw.Close()

	s.Require().NoError(raw.Set(ctx, "k", []byte("v"), 0))
	time.Sleep(60 * time.Millisecond)

	_, found, err := raw.Get(ctx, "k")
	s.Require().NoError(err)
	s.False(found)
}

func (s *InMemorySuite) TestStoredValuesAreCopies() {
	ctx := context.Background()
	value := []byte("abc")

	s.Require().NoError(s.raw.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, _, err := s.raw.Get(ctx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("abc"), got)
}

func (s *InMemorySuite) TestFlush() {
	ctx := context.Background()
	s.Require().NoError(s.raw.Set(ctx, "a", []byte("1"), 0))
	s.Require().NoError(s.raw.Set(ctx, "b", []byte("2"), 0))

	s.Require().NoError(s.raw.Flush(ctx))

	for _, key := range []string{"a", "b"} {
		exists, err := s.raw.Exists(ctx, key)
		s.Require().NoError(err)
		s.False(exists)
	}
}

func (s *InMemorySuite) TestConcurrentIncrement() {
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.raw.Increment(ctx, "counter", 2)
			s.NoError(err)
		}()
	}
	wg.Wait()

	val, err := s.raw.Decrement(ctx, "counter", 1)
	s.Require().NoError(err)
	s.Equal(int64(99), val)
}

func (s *InMemorySuite) TestCloseIsIdempotent() {
	raw := cache.NewInMemoryCache()
	s.Require().NoError(raw.Close())
	s.Require().NoError(raw.Close())
}

type direction struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *InMemorySuite) TestGenericCache() {
	ctx := context.Background()
	typed := cache.NewView[string, direction](s.raw, cache.Prefixed("dir:"))

	s.Require().NoError(typed.Set(ctx, "example.com", direction{From: "en", To: "fr"}, 0))

	got, found, err := typed.Get(ctx, "example.com")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(direction{From: "en", To: "fr"}, got)

	exists, err := s.raw.Exists(ctx, "dir:example.com")
	s.Require().NoError(err)
	s.True(exists)

	s.Require().NoError(s.raw.Set(ctx, "dir:broken", []byte("{"), 0))
	_, found, err = typed.Get(ctx, "broken")
	s.Require().Error(err)
	s.False(found)
}

func (s *InMemorySuite) TestManager() {
	mgr := cache.NewManager()
	first := cache.NewInMemoryCache()
	mgr.AddCache("settings", first)

	got, ok := mgr.GetRawCache("settings")
	s.True(ok)
	s.Same(first, got)

	typed, ok := cache.View[string, int](mgr, "settings", nil)
	s.True(ok)
	s.Require().NoError(typed.Set(context.Background(), "n", 7, 0))

	mgr.AddCache("history", cache.NewInMemoryCache())
	s.Equal([]string{"history", "settings"}, mgr.Names())

	_, ok = mgr.GetRawCache("missing")
	s.False(ok)

	s.Require().NoError(mgr.RemoveCache("settings"))
	s.Require().NoError(mgr.RemoveCache("settings"))

	s.Require().NoError(mgr.Close())
	s.Empty(mgr.Names())
	_, ok = mgr.GetRawCache("history")
	s.False(ok)
}
