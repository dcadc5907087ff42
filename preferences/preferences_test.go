package preferences_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/preferences"
)

func TestSiteVerdict(t *testing.T) {
	cases := []struct {
		name  string
		prefs *preferences.SitePreferences
		lang  string
		want  preferences.Verdict
	}{
		{"no preferences", nil, "de", preferences.NoPreference},
		{"disabled", &preferences.SitePreferences{EnableAutoTranslate: false}, "de", preferences.Never},
		{"ignored language", &preferences.SitePreferences{
			EnableAutoTranslate: true,
			IgnoreLanguages:     []string{"de"},
		}, "de-AT", preferences.Never},
		{"any language", &preferences.SitePreferences{EnableAutoTranslate: true}, "de", preferences.Always},
		{"listed language", &preferences.SitePreferences{
			EnableAutoTranslate: true,
			TranslateLanguages:  []string{"fr", "de"},
		}, "de", preferences.Always},
		{"unlisted language", &preferences.SitePreferences{
			EnableAutoTranslate: true,
			TranslateLanguages:  []string{"fr"},
		}, "de", preferences.NoPreference},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.prefs.Verdict(tc.lang))
		})
	}
}

func TestLanguageVerdict(t *testing.T) {
	yes, no := true, false
	require.Equal(t, preferences.NoPreference, preferences.LanguageVerdict(nil))
	require.Equal(t, preferences.Always, preferences.LanguageVerdict(&yes))
	require.Equal(t, preferences.Never, preferences.LanguageVerdict(&no))
	require.Equal(t, "never", preferences.Never.String())
}

type StoreSuite struct {
	suite.Suite
	raw   cache.RawCache
	store *preferences.Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.raw = cache.NewInMemoryCache()
	s.store = preferences.NewStore(s.raw)
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.raw.Close())
}

func (s *StoreSuite) TestSites() {
	ctx := s.T().Context()

	prefs, err := s.store.Site(ctx, "example.org")
	s.Require().NoError(err)
	s.Nil(prefs)

	s.Require().NoError(s.store.SetSite(ctx, "Example.org", preferences.SitePreferences{
		EnableAutoTranslate: true,
		TranslateLanguages:  []string{"de"},
	}))

	prefs, err = s.store.Site(ctx, "example.org")
	s.Require().NoError(err)
	s.Require().NotNil(prefs)
	s.Equal(preferences.Always, prefs.Verdict("de"))

	s.Require().NoError(s.store.DeleteSite(ctx, "example.org"))
	prefs, err = s.store.Site(ctx, "example.org")
	s.Require().NoError(err)
	s.Nil(prefs)

	s.Error(s.store.SetSite(ctx, " ", preferences.SitePreferences{}))
}

func (s *StoreSuite) TestLanguages() {
	ctx := s.T().Context()

	s.Require().NoError(s.store.SetLanguage(ctx, "de-DE", true))
	s.Require().NoError(s.store.SetLanguage(ctx, "ja", false))

	all, err := s.store.Languages(ctx)
	s.Require().NoError(err)
	s.Equal(map[string]bool{"de": true, "ja": false}, all)

	enabled, err := s.store.Language(ctx, "de")
	s.Require().NoError(err)
	s.Equal(preferences.Always, preferences.LanguageVerdict(enabled))

	s.Require().NoError(s.store.DeleteLanguage(ctx, "de"))
	enabled, err = s.store.Language(ctx, "de")
	s.Require().NoError(err)
	s.Nil(enabled)
}

func (s *StoreSuite) TestSuggest() {
	ctx := s.T().Context()

	suggestion, err := s.store.Suggest(ctx, "en")
	s.Require().NoError(err)
	s.Empty(suggestion)

	s.Require().NoError(s.store.RecordUsage(ctx, "en", "fr"))
	s.Require().NoError(s.store.RecordUsage(ctx, "en", "de"))
	s.Require().NoError(s.store.RecordUsage(ctx, "en-US", "de"))
	s.Require().NoError(s.store.RecordUsage(ctx, "auto", "sw"))

	suggestion, err = s.store.Suggest(ctx, "en")
	s.Require().NoError(err)
	s.Equal("de", suggestion)
}
