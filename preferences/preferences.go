// Package preferences keeps the per site and per language auto translate choices.
package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/localization"
)

// Verdict is the answer of one preference source.
type Verdict int

const (
	NoPreference Verdict = iota
	Always
	Never
)

func (v Verdict) String() string {
	switch v {
	case Always:
		return "always"
	case Never:
		return "never"
	default:
		return "none"
	}
}

// SitePreferences are the choices made for one host.
type SitePreferences struct {
	EnableAutoTranslate bool     `json:"enableAutoTranslate"`
	TranslateLanguages  []string `json:"autoTranslateLanguages"`
	IgnoreLanguages     []string `json:"autoTranslateIgnoreLanguages"`
}

// Verdict decides for a page in pageLanguage. A site with auto translation
// disabled or the language ignored is never translated. An empty language
// list means every language.
func (p *SitePreferences) Verdict(pageLanguage string) Verdict {
	if p == nil {
		return NoPreference
	}
	if !p.EnableAutoTranslate {
		return Never
	}
	if localization.Contains(p.IgnoreLanguages, pageLanguage) {
		return Never
	}
	if len(p.TranslateLanguages) == 0 || localization.Contains(p.TranslateLanguages, pageLanguage) {
		return Always
	}
	return NoPreference
}

// LanguageVerdict maps a stored language preference to a verdict.
func LanguageVerdict(enabled *bool) Verdict {
	switch {
	case enabled == nil:
		return NoPreference
	case *enabled:
		return Always
	default:
		return Never
	}
}

const (
	languagesKey = "languages"
	usageKey     = "usage"
	sitePrefix   = "site:"
)

// Store persists preferences in a RawCache.
type Store struct {
	raw   cache.RawCache
	sites cache.Cache[string, SitePreferences]

	// mu guards the read-modify-write of the language and usage documents.
	mu sync.Mutex
}

func NewStore(raw cache.RawCache) *Store {
	return &Store{
		raw: raw,
		sites: cache.NewView[string, SitePreferences](raw, func(host string) string {
			return sitePrefix + strings.ToLower(strings.TrimSpace(host))
		}),
	}
}

// Site returns the preferences of host, or nil when none are stored.
func (s *Store) Site(ctx context.Context, host string) (*SitePreferences, error) {
	prefs, found, err := s.sites.Get(ctx, host)
	if err != nil || !found {
		return nil, err
	}
	return &prefs, nil
}

func (s *Store) SetSite(ctx context.Context, host string, prefs SitePreferences) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("site preferences need a host")
	}
	return s.sites.Set(ctx, host, prefs, 0)
}

func (s *Store) DeleteSite(ctx context.Context, host string) error {
	return s.sites.Delete(ctx, host)
}

// Languages returns every stored language preference.
func (s *Store) Languages(ctx context.Context) (map[string]bool, error) {
	out := map[string]bool{}
	if err := s.load(ctx, languagesKey, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Language returns the stored preference for lang, or nil.
func (s *Store) Language(ctx context.Context, lang string) (*bool, error) {
	all, err := s.Languages(ctx)
	if err != nil {
		return nil, err
	}
	enabled, ok := all[localization.Base(lang)]
	if !ok {
		return nil, nil
	}
	return &enabled, nil
}

func (s *Store) SetLanguage(ctx context.Context, lang string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := map[string]bool{}
	if err := s.load(ctx, languagesKey, &all); err != nil {
		return err
	}
	all[localization.Base(lang)] = enabled
	return s.save(ctx, languagesKey, all)
}

func (s *Store) DeleteLanguage(ctx context.Context, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := map[string]bool{}
	if err := s.load(ctx, languagesKey, &all); err != nil {
		return err
	}
	delete(all, localization.Base(lang))
	return s.save(ctx, languagesKey, all)
}

// RecordUsage counts a translation from one language to another.
func (s *Store) RecordUsage(ctx context.Context, from string, to string) error {
	if from == "" || to == "" || from == "auto" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	usage := map[string]map[string]int{}
	if err := s.load(ctx, usageKey, &usage); err != nil {
		return err
	}
	from, to = localization.Base(from), localization.Base(to)
	if usage[from] == nil {
		usage[from] = map[string]int{}
	}
	usage[from][to]++
	return s.save(ctx, usageKey, usage)
}

// Suggest returns the target language most often used for from, or "".
func (s *Store) Suggest(ctx context.Context, from string) (string, error) {
	usage := map[string]map[string]int{}
	if err := s.load(ctx, usageKey, &usage); err != nil {
		return "", err
	}

	best, bestCount := "", 0
	for to, count := range usage[localization.Base(from)] {
		if count > bestCount || (count == bestCount && to < best) {
			best, bestCount = to, count
		}
	}
	return best, nil
}

func (s *Store) load(ctx context.Context, key string, into any) error {
	raw, found, err := s.raw.Get(ctx, key)
	if err != nil || !found {
		return err
	}
	if err = json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("corrupt %s preferences: %w", key, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.raw.Set(ctx, key, raw, 0)
}
