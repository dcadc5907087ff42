package background

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pitabwire/autotranslate/history"
	"github.com/pitabwire/autotranslate/localization"
	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/preferences"
	"github.com/pitabwire/autotranslate/registry"
	"github.com/pitabwire/autotranslate/settings"
	"github.com/pitabwire/autotranslate/translator"
)

// Operations served by the background context.
const (
	OpTranslate                  = "translate"
	OpGetTranslatorFeatures      = "getTranslatorFeatures"
	OpGetTranslatorModules       = "getTranslatorModules"
	OpSuggestLanguage            = "suggestLanguage"
	OpGetUserLanguagePreferences = "getUserLanguagePreferences"
	OpClearCache                 = "clearCache"
	OpGetConfig                  = "getConfig"
	OpSetConfig                  = "setConfig"
	OpUpdateConfig               = "updateConfig"
	OpResetConfig                = "resetConfig"
	OpGetLanguagePreferences     = "getLanguagePreferences"
	OpAddLanguagePreferences     = "addLanguagePreferences"
	OpDeleteLanguagePreferences  = "deleteLanguagePreferences"
	OpGetSitePreferences         = "getSitePreferences"
	OpSetSitePreferences         = "setSitePreferences"
	OpDeleteSitePreferences      = "deleteSitePreferences"
	OpAddTranslation             = "addTranslation"
	OpDeleteTranslation          = "deleteTranslation"
	OpFindTranslation            = "findTranslation"
	OpGetTranslations            = "getTranslations"
	OpClearTranslations          = "clearTranslations"
)

type TranslateRequest struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

type SuggestLanguageRequest struct {
	From string `json:"from"`
}

type LanguagePreferenceRequest struct {
	Language            string `json:"language"`
	EnableAutoTranslate bool   `json:"enableAutoTranslate"`
}

type SitePreferencesRequest struct {
	Site        string                       `json:"site"`
	Preferences *preferences.SitePreferences `json:"preferences,omitempty"`
}

type TranslationIDRequest struct {
	ID string `json:"id"`
}

type TranslationsRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type empty struct{}

// Factories lists the background handlers in registration order. ping is last
// so a successful probe means every other handler is in place.
func Factories() []registry.Factory[Bundle] {
	return []registry.Factory[Bundle]{
		handler(OpTranslate, translate),
		handler(OpGetTranslatorFeatures, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(_ context.Context, _ empty) (translator.Capabilities, error) {
				return b.Translators.Capabilities()
			})
		}),
		handler(OpGetTranslatorModules, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(_ context.Context, _ empty) ([]string, error) {
				return b.Translators.Modules(), nil
			})
		}),
		handler(OpSuggestLanguage, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in SuggestLanguageRequest) (string, error) {
				return b.Preferences.Suggest(ctx, in.From)
			})
		}),
		handler(OpGetUserLanguagePreferences, func(_ Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, _ empty) ([]string, error) {
				langs := localization.FromContext(ctx)
				if langs == nil {
					langs = []string{}
				}
				return langs, nil
			})
		}),
		handler(OpClearCache, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, _ empty) (*empty, error) {
				return nil, b.Translators.ClearCache(ctx)
			})
		}),

		handler(OpGetConfig, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(_ context.Context, _ empty) (settings.Tree, error) {
				return b.Settings.Get(), nil
			})
		}),
		handler(OpSetConfig, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, tree settings.Tree) (*empty, error) {
				return nil, b.Settings.Update(ctx, tree.Full())
			})
		}),
		handler(OpUpdateConfig, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, partial settings.Partial) (*empty, error) {
				return nil, b.Settings.Update(ctx, partial)
			})
		}),
		handler(OpResetConfig, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, _ empty) (*empty, error) {
				return nil, b.Settings.Reset(ctx)
			})
		}),

		handler(OpGetLanguagePreferences, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in LanguagePreferenceRequest) (*bool, error) {
				if err := requireField("language", in.Language); err != nil {
					return nil, err
				}
				return b.Preferences.Language(ctx, in.Language)
			})
		}),
		handler(OpAddLanguagePreferences, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in LanguagePreferenceRequest) (*empty, error) {
				if err := requireField("language", in.Language); err != nil {
					return nil, err
				}
				return nil, persisted(b.Preferences.SetLanguage(ctx, in.Language, in.EnableAutoTranslate))
			})
		}),
		handler(OpDeleteLanguagePreferences, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in LanguagePreferenceRequest) (*empty, error) {
				if err := requireField("language", in.Language); err != nil {
					return nil, err
				}
				return nil, persisted(b.Preferences.DeleteLanguage(ctx, in.Language))
			})
		}),
		handler(OpGetSitePreferences, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in SitePreferencesRequest) (*preferences.SitePreferences, error) {
				if err := requireField("site", in.Site); err != nil {
					return nil, err
				}
				return b.Preferences.Site(ctx, in.Site)
			})
		}),
		handler(OpSetSitePreferences, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in SitePreferencesRequest) (*empty, error) {
				if err := requireField("site", in.Site); err != nil {
					return nil, err
				}
				if in.Preferences == nil {
					return nil, fmt.Errorf("%w: preferences are required", messaging.ErrInvalidPayload)
				}
				return nil, persisted(b.Preferences.SetSite(ctx, in.Site, *in.Preferences))
			})
		}),
		handler(OpDeleteSitePreferences, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in SitePreferencesRequest) (*empty, error) {
				if err := requireField("site", in.Site); err != nil {
					return nil, err
				}
				return nil, persisted(b.Preferences.DeleteSite(ctx, in.Site))
			})
		}),

		handler(OpAddTranslation, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in history.Entry) (history.Entry, error) {
				if err := requireField("text", in.Text); err != nil {
					return history.Entry{}, err
				}
				entry, err := b.History.Add(ctx, in)
				return entry, persisted(err)
			})
		}),
		handler(OpDeleteTranslation, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in TranslationIDRequest) (*empty, error) {
				if err := requireField("id", in.ID); err != nil {
					return nil, err
				}
				err := b.History.Delete(ctx, in.ID)
				if errors.Is(err, history.ErrNotFound) {
					return nil, fmt.Errorf("%w: %w", messaging.ErrInvalidPayload, err)
				}
				return nil, persisted(err)
			})
		}),
		handler(OpFindTranslation, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in history.Lookup) (*history.Entry, error) {
				return b.History.Find(ctx, in)
			})
		}),
		handler(OpGetTranslations, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in TranslationsRequest) ([]history.Entry, error) {
				return b.History.List(ctx, in.Offset, in.Limit)
			})
		}),
		handler(OpClearTranslations, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, _ empty) (*empty, error) {
				return nil, persisted(b.History.Clear(ctx))
			})
		}),

		registry.Ping[Bundle](),
	}
}

func handler(name string, build func(b Bundle) registry.HandlerFunc) registry.Factory[Bundle] {
	return registry.Factory[Bundle]{
		Name: name,
		Build: func(_ context.Context, b Bundle) (registry.HandlerFunc, error) {
			return build(b), nil
		},
	}
}

func translate(b Bundle) registry.HandlerFunc {
	return registry.Typed(func(ctx context.Context, in TranslateRequest) (string, error) {
		if strings.TrimSpace(in.To) == "" {
			return "", fmt.Errorf("%w: target language is required", messaging.ErrInvalidPayload)
		}
		if in.From == "" {
			in.From = translator.AutoDetect
		}

		translation, err := b.Translators.Translate(ctx, in.Text, in.From, in.To)
		if err != nil {
			return "", err
		}
		if err = b.Preferences.RecordUsage(ctx, in.From, in.To); err != nil {
			return "", persisted(err)
		}
		return translation, nil
	})
}

func requireField(name string, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", messaging.ErrInvalidPayload, name)
	}
	return nil
}

// persisted marks storage failures so callers see the persistence kind.
func persisted(err error) error {
	if err == nil || errors.Is(err, messaging.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", messaging.ErrPersistence, err)
}
