package contentscript

import (
	"context"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/preferences"
)

// Background operations the auto translate decision reads.
const (
	OpGetSitePreferences     = "getSitePreferences"
	OpGetLanguagePreferences = "getLanguagePreferences"
)

// PreferenceSource answers whether a page should be translated automatically.
type PreferenceSource interface {
	SiteVerdict(ctx context.Context, host string, lang string) (preferences.Verdict, error)
	LanguageVerdict(ctx context.Context, lang string) (preferences.Verdict, error)
}

// RemotePreferences reads the preferences kept by the background context.
type RemotePreferences struct {
	Caller Caller
}

func (r RemotePreferences) SiteVerdict(ctx context.Context, host string, lang string) (preferences.Verdict, error) {
	var prefs *preferences.SitePreferences
	err := r.Caller.Call(ctx, OpGetSitePreferences, map[string]string{"site": host}, &prefs)
	if err != nil {
		return preferences.NoPreference, err
	}
	return prefs.Verdict(lang), nil
}

func (r RemotePreferences) LanguageVerdict(ctx context.Context, lang string) (preferences.Verdict, error) {
	var enabled *bool
	err := r.Caller.Call(ctx, OpGetLanguagePreferences, map[string]string{"language": lang}, &enabled)
	if err != nil {
		return preferences.NoPreference, err
	}
	return preferences.LanguageVerdict(enabled), nil
}

// LanguageDetector returns the current page language, or "" when unknown.
type LanguageDetector func(ctx context.Context, byContent bool) string

// AutoTranslator decides once per page whether to translate it without
// being asked.
type AutoTranslator struct {
	engine *Engine
	host   string
	detect LanguageDetector
	prefs  PreferenceSource

	// allowSameLanguage keeps pages already in the target language eligible.
	allowSameLanguage bool

	once   sync.Once
	result bool
	err    error
}

func NewAutoTranslator(engine *Engine, host string, detect LanguageDetector, prefs PreferenceSource) *AutoTranslator {
	return &AutoTranslator{
		engine:            engine,
		host:              host,
		detect:            detect,
		prefs:             prefs,
		allowSameLanguage: true,
	}
}

// Run makes the decision at the first call. Later calls return the first outcome.
func (a *AutoTranslator) Run(ctx context.Context) (bool, error) {
	a.once.Do(func() {
		a.result, a.err = a.decide(ctx)
	})
	return a.result, a.err
}

func (a *AutoTranslator) decide(ctx context.Context) (bool, error) {
	if a.engine.PageRunning() {
		return false, nil
	}

	cfg := a.engine.Config()
	from := a.detect(ctx, cfg.PageTranslator.DetectLanguageByContent)
	if from == "" {
		return false, nil
	}

	if from != a.engine.PageLanguage() {
		if err := a.engine.SetPageLanguage(ctx, from); err != nil {
			return false, err
		}
	}

	to := cfg.Language
	if from == to && !a.allowSameLanguage {
		return false, nil
	}

	log := util.Log(ctx).WithField("host", a.host).WithField("from", from).WithField("to", to)

	translate := false

	site, err := a.prefs.SiteVerdict(ctx, a.host, from)
	if err != nil {
		return false, err
	}
	switch site {
	case preferences.Never:
		log.Debug("site is never translated")
		return false, nil
	case preferences.Always:
		translate = true
	case preferences.NoPreference:
	}

	language, err := a.prefs.LanguageVerdict(ctx, from)
	if err != nil {
		return false, err
	}
	switch language {
	case preferences.Never:
		log.Debug("language is never translated")
		return false, nil
	case preferences.Always:
		translate = true
	case preferences.NoPreference:
	}

	if !translate {
		return false, nil
	}

	if err = a.engine.TranslatePage(ctx, Direction{From: from, To: to}); err != nil {
		return false, err
	}
	log.Info("page translated automatically")
	return true, nil
}
