package settings_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/settings"
)

type flakyCache struct {
	cache.RawCache
	mu      sync.Mutex
	failSet bool
}

func (f *flakyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.RawCache.Set(ctx, key, value, ttl)
}

func (f *flakyCache) fail(v bool) {
	f.mu.Lock()
	f.failSet = v
	f.mu.Unlock()
}

type StoreSuite struct {
	suite.Suite
	backend *flakyCache
	store   *settings.Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.backend = &flakyCache{RawCache: cache.NewInMemoryCache()}

	var err error
	s.store, err = settings.NewStore(s.T().Context(), s.backend, settings.Defaults())
	s.Require().NoError(err)
}

func (s *StoreSuite) TearDownTest() {
	s.store.Close()
	s.Require().NoError(s.backend.Close())
}

func ptr[T any](v T) *T {
	return &v
}

func (s *StoreSuite) TestUpdateNotifiesOnlyWatchedSections() {
	ctx := s.T().Context()

	var schedulerCalls, appIconCalls, allCalls int
	s.store.OnUpdate(func(_ context.Context, next, prev settings.Tree) {
		schedulerCalls++
		s.True(prev.Scheduler.UseCache)
		s.False(next.Scheduler.UseCache)
	}, settings.SectionScheduler)
	s.store.OnUpdate(func(_ context.Context, _, _ settings.Tree) {
		appIconCalls++
	}, settings.SectionAppIcon)
	s.store.OnUpdate(func(_ context.Context, _, _ settings.Tree) {
		allCalls++
	})

	scheduler := s.store.Get().Scheduler
	scheduler.UseCache = false
	s.Require().NoError(s.store.Update(ctx, settings.Partial{Scheduler: &scheduler}))

	s.Equal(1, schedulerCalls)
	s.Equal(0, appIconCalls)
	s.Equal(1, allCalls)
	s.Equal(uint64(1), s.store.Revision())

	s.Require().NoError(s.store.Update(ctx, settings.Partial{Scheduler: &scheduler}))
	s.Equal(1, schedulerCalls)
	s.Equal(1, allCalls)
	s.Equal(uint64(1), s.store.Revision())
}

func (s *StoreSuite) TestSectionsAreReplacedWholesale() {
	ctx := s.T().Context()

	s.Require().NoError(s.store.Update(ctx, settings.Partial{
		SelectTranslator: &settings.SelectTranslator{Mode: settings.ModeContextMenu},
	}))

	got := s.store.Get().SelectTranslator
	s.Equal(settings.ModeContextMenu, got.Mode)
	s.False(got.Enabled)
	s.Zero(got.ZIndex)
}

func (s *StoreSuite) TestPersistenceFailureKeepsTreeAndSkipsNotification() {
	ctx := s.T().Context()

	fired := false
	s.store.OnUpdate(func(_ context.Context, _, _ settings.Tree) {
		fired = true
	})

	before := s.store.Get()
	s.backend.fail(true)

	err := s.store.Update(ctx, settings.Partial{Language: ptr("fr")})

	var persistErr *settings.PersistenceError
	s.Require().ErrorAs(err, &persistErr)
	s.Require().ErrorIs(err, messaging.ErrPersistence)
	s.Equal(messaging.KindPersistence, messaging.ErrorKind(err))
	s.False(fired)
	s.Equal(before, s.store.Get())

	s.Require().ErrorIs(s.store.Reset(ctx), messaging.ErrPersistence)
	s.False(fired)
}

func (s *StoreSuite) TestResetFiresEverySubscription() {
	ctx := s.T().Context()

	s.Require().NoError(s.store.Update(ctx, settings.Partial{Language: ptr("de")}))

	var fired []settings.Section
	for _, section := range settings.AllSections() {
		s.store.OnUpdate(func(_ context.Context, _, _ settings.Tree) {
			fired = append(fired, section)
		}, section)
	}

	s.Require().NoError(s.store.Reset(ctx))
	s.Equal(settings.AllSections(), fired)
	s.Equal("en", s.store.Get().Language)
	s.Equal(uint64(2), s.store.Revision())
}

func (s *StoreSuite) TestUnsubscribeIsIdempotent() {
	ctx := s.T().Context()

	calls := 0
	unsubscribe := s.store.OnUpdate(func(_ context.Context, _, _ settings.Tree) {
		calls++
	})
	unsubscribe()
	unsubscribe()

	s.Require().NoError(s.store.Update(ctx, settings.Partial{Language: ptr("fr")}))
	s.Zero(calls)

	late := s.store.OnUpdate(func(_ context.Context, _, _ settings.Tree) {})
	s.store.Close()
	late()
	s.store.OnUpdate(func(_ context.Context, _, _ settings.Tree) {})()
}

func (s *StoreSuite) TestPersistedTreeIsReloaded() {
	ctx := s.T().Context()

	s.Require().NoError(s.store.Update(ctx, settings.Partial{Language: ptr("sw")}))

	reopened, err := settings.NewStore(ctx, s.backend, settings.Defaults())
	s.Require().NoError(err)
	s.Equal("sw", reopened.Get().Language)
	s.Equal(uint64(1), reopened.Revision())
}

func (s *StoreSuite) TestConcurrentUpdatesAreSerialized() {
	ctx := s.T().Context()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.store.Update(ctx, settings.Partial{Cache: &settings.Cache{IgnoreCase: i%2 == 0}}))
			s.NoError(s.store.Update(ctx, settings.Partial{
				History: &settings.History{Enabled: i%2 == 0},
			}))
		}()
	}
	wg.Wait()

	var revisions []uint64
	s.store.OnUpdate(func(_ context.Context, next, prev settings.Tree) {
		revisions = append(revisions, prev.Revision, next.Revision)
	})
	s.Require().NoError(s.store.Update(ctx, settings.Partial{Language: ptr("ja")}))
	s.Require().Len(revisions, 2)
	s.Equal(revisions[0]+1, revisions[1])
}

func TestSubscriptionFiresIffWatchedSectionChanged(t *testing.T) {
	ctx := t.Context()
	rng := rand.New(rand.NewPCG(7, 11))

	store, err := settings.NewStore(ctx, cache.NewInMemoryCache(), settings.Defaults())
	require.NoError(t, err)

	fired := map[settings.Section]int{}
	for _, section := range settings.AllSections() {
		store.OnUpdate(func(_ context.Context, _, _ settings.Tree) {
			fired[section]++
		}, section)
	}

	languages := []string{"en", "fr", "de"}
	for range 300 {
		var p settings.Partial
		if rng.IntN(2) == 0 {
			p.Language = ptr(languages[rng.IntN(len(languages))])
		}
		if rng.IntN(2) == 0 {
			p.Cache = &settings.Cache{IgnoreCase: rng.IntN(2) == 0}
		}
		if rng.IntN(3) == 0 {
			p.ContentScript = &settings.ContentScript{SelectTranslator: settings.ContentScriptSelectTranslator{
				Enabled:                   rng.IntN(2) == 0,
				DisableWhileTranslatePage: rng.IntN(2) == 0,
			}}
		}

		prev := store.Get()
		expected := prev.Merge(p).Changed(prev)
		clear(fired)

		require.NoError(t, store.Update(ctx, p))

		for _, section := range settings.AllSections() {
			want := 0
			for _, changed := range expected {
				if changed == section {
					want = 1
				}
			}
			require.Equal(t, want, fired[section], "section %s", section)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "defaults.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("language: fr\nscheduler:\n  useCache: false\n"), 0o600))

	tree, err := settings.LoadDefaults(yamlPath)
	require.NoError(t, err)
	require.Equal(t, "fr", tree.Language)
	require.False(t, tree.Scheduler.UseCache)
	require.Equal(t, settings.Defaults().Scheduler.TranslatePoolDelay, tree.Scheduler.TranslatePoolDelay)

	tomlPath := filepath.Join(dir, "defaults.toml")
	require.NoError(t, os.WriteFile(tomlPath,
		[]byte("translatorModule = \"custom\"\n[contentscript.selectTranslator]\nenabled = false\n"), 0o600))

	tree, err = settings.LoadDefaults(tomlPath)
	require.NoError(t, err)
	require.Equal(t, "custom", tree.TranslatorModule)
	require.False(t, tree.ContentScript.SelectTranslator.Enabled)
	require.True(t, tree.ContentScript.SelectTranslator.DisableWhileTranslatePage)

	tree, err = settings.LoadDefaults("")
	require.NoError(t, err)
	require.Equal(t, settings.Defaults(), tree)

	_, err = settings.LoadDefaults(filepath.Join(dir, "defaults.ini"))
	require.Error(t, err)
}
