package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	tcvalkey "github.com/testcontainers/testcontainers-go/modules/valkey"

	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/data"
	"github.com/pitabwire/autotranslate/storage"
)

const (
	valkeyImage = "docker.io/valkey/valkey:8"
	natsImage   = "docker.io/library/nats:2.11"
)

type BackendSuite struct {
	suite.Suite
	dsns map[string]data.DSN
}

func TestBackendSuite(t *testing.T) {
	suite.Run(t, new(BackendSuite))
}

func (s *BackendSuite) SetupSuite() {
	s.dsns = map[string]data.DSN{"memory": "mem://"}

	if testing.Short() {
		return
	}
	testcontainers.SkipIfProviderIsNotHealthy(s.T())

	ctx := s.T().Context()

	valkeyContainer, err := tcvalkey.Run(ctx, valkeyImage)
	testcontainers.CleanupContainer(s.T(), valkeyContainer)
	s.Require().NoError(err)
	conn, err := valkeyContainer.ConnectionString(ctx)
	s.Require().NoError(err)
	s.dsns["redis"] = data.DSN(conn)
	valkeyDSN, err := data.DSN(conn).WithScheme("valkey")
	s.Require().NoError(err)
	s.dsns["valkey"] = valkeyDSN

	natsContainer, err := tcnats.Run(ctx, natsImage, testcontainers.WithCmdArgs("--js"))
	testcontainers.CleanupContainer(s.T(), natsContainer)
	s.Require().NoError(err)
	natsConn, err := natsContainer.ConnectionString(ctx)
	s.Require().NoError(err)
	s.dsns["jetstream"] = data.DSN(natsConn)
}

func (s *BackendSuite) open(name string, dsn data.DSN, bucket string) cache.RawCache {
	raw, err := storage.Open(context.Background(), dsn, fmt.Sprintf("%s_%s", bucket, name), time.Hour)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = raw.Close() })
	return raw
}

func (s *BackendSuite) TestRoundTrip() {
	ctx := context.Background()

	for name, dsn := range s.dsns {
		s.Run(name, func() {
			raw := s.open(name, dsn, "roundtrip")

			key := "translation:en:fr:Hello, world!"
			s.Require().NoError(raw.Set(ctx, key, []byte("Bonjour, le monde !"), 0))

			val, found, err := raw.Get(ctx, key)
			s.Require().NoError(err)
			s.True(found)
			s.Equal([]byte("Bonjour, le monde !"), val)

			exists, err := raw.Exists(ctx, key)
			s.Require().NoError(err)
			s.True(exists)

			s.Require().NoError(raw.Delete(ctx, key))
			_, found, err = raw.Get(ctx, key)
			s.Require().NoError(err)
			s.False(found)
		})
	}
}

func (s *BackendSuite) TestCounters() {
	ctx := context.Background()

	for name, dsn := range s.dsns {
		s.Run(name, func() {
			raw := s.open(name, dsn, "counters")

			val, err := raw.Increment(ctx, "migrations", 3)
			s.Require().NoError(err)
			s.Equal(int64(3), val)

			val, err = raw.Decrement(ctx, "migrations", 1)
			s.Require().NoError(err)
			s.Equal(int64(2), val)
		})
	}
}

func (s *BackendSuite) TestFlushIsScopedToOneCache() {
	ctx := context.Background()

	for name, dsn := range s.dsns {
		s.Run(name, func() {
			translations := s.open(name, dsn, "flush_translations")
			settings := s.open(name, dsn, "flush_settings")

			s.Require().NoError(translations.Set(ctx, "k", []byte("v"), 0))
			s.Require().NoError(settings.Set(ctx, "k", []byte("v"), 0))

			s.Require().NoError(translations.Flush(ctx))

			exists, err := translations.Exists(ctx, "k")
			s.Require().NoError(err)
			s.False(exists)

			exists, err = settings.Exists(ctx, "k")
			s.Require().NoError(err)
			s.True(exists)
		})
	}
}

func (s *BackendSuite) TestUnsupportedScheme() {
	_, err := storage.Open(context.Background(), "ftp://nowhere", "x", 0)
	s.Require().Error(err)
}

func (s *BackendSuite) TestOpenAll() {
	mgr, err := storage.OpenAll(context.Background(), "mem://", "autotranslate", nil)
	s.Require().NoError(err)
	defer mgr.Close()

	for _, name := range []string{
		storage.SettingsCache, storage.PreferencesCache, storage.TranslationsCache,
		storage.HistoryCache, storage.SystemCache,
	} {
		_, ok := mgr.GetRawCache(name)
		s.True(ok, name)
	}
}
