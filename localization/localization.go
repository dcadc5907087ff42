package localization

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pitabwire/util"
	"golang.org/x/text/language"
)

type contextKey string

func (c contextKey) String() string {
	return "autotranslate/localization/" + string(c)
}

const (
	ctxKeyLanguage = contextKey("languageKey")
	metadataKey    = "lang"
)

//go:embed messages/*.toml
var catalogs embed.FS

// ToContext adds the caller's preferred languages to the context.
func ToContext(ctx context.Context, lang []string) context.Context {
	return context.WithValue(ctx, ctxKeyLanguage, lang)
}

// FromContext extracts the preferred languages from the supplied context if any exist.
func FromContext(ctx context.Context) []string {
	languages, ok := ctx.Value(ctxKeyLanguage).([]string)
	if !ok {
		return nil
	}

	return languages
}

// ToMap stores languages into message metadata.
func ToMap(m map[string]string, lang []string) map[string]string {
	m[metadataKey] = strings.Join(lang, ",")
	return m
}

// FromMap reads languages carried in message metadata.
func FromMap(m map[string]string) []string {
	lang, ok := m[metadataKey]
	if !ok || lang == "" {
		return nil
	}
	return strings.Split(lang, ",")
}

// Normalize returns the canonical BCP 47 form of a language code, or an empty
// string when the code cannot be parsed. "auto" is kept as is.
func Normalize(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	if strings.EqualFold(lang, "auto") {
		return "auto"
	}

	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	return tag.String()
}

// Base reduces a language code to its base language, so "en-GB" and "en" compare equal.
func Base(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(lang))
	}
	base, _ := tag.Base()
	return base.String()
}

// SameLanguage reports whether two codes name the same base language.
func SameLanguage(a, b string) bool {
	return a != "" && b != "" && Base(a) == Base(b)
}

// Contains reports whether lang matches any entry of langs by base language.
func Contains(langs []string, lang string) bool {
	for _, l := range langs {
		if SameLanguage(l, lang) {
			return true
		}
	}
	return false
}

type Manager interface {
	Bundle() *i18n.Bundle
	Translate(ctx context.Context, languages []string, messageID string) string
	TranslateWithMap(ctx context.Context, languages []string, messageID string, variables map[string]any) string
}

type managerImpl struct {
	bundle *i18n.Bundle
}

// NewManager loads the embedded message catalogs for the requested languages.
// English is always loaded as the fallback.
func NewManager(languages ...string) (Manager, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	seen := map[string]bool{}
	for _, lang := range append([]string{"en"}, languages...) {
		base := Base(lang)
		if seen[base] {
			continue
		}
		seen[base] = true

		if _, err := bundle.LoadMessageFileFS(catalogs, fmt.Sprintf("messages/messages.%s.toml", base)); err != nil {
			return nil, fmt.Errorf("could not load message catalog %q: %w", base, err)
		}
	}

	return &managerImpl{bundle: bundle}, nil
}

func (s *managerImpl) Bundle() *i18n.Bundle {
	return s.bundle
}

func (s *managerImpl) Translate(ctx context.Context, languages []string, messageID string) string {
	return s.TranslateWithMap(ctx, languages, messageID, nil)
}

// TranslateWithMap renders messageID in the first supported language of languages.
// Unknown ids are returned unchanged.
func (s *managerImpl) TranslateWithMap(
	ctx context.Context,
	languages []string,
	messageID string,
	variables map[string]any,
) string {
	localizer := i18n.NewLocalizer(s.bundle, languages...)

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:      messageID,
		DefaultMessage: &i18n.Message{ID: messageID, Other: messageID},
		TemplateData:   variables,
	})
	if err != nil {
		util.Log(ctx).WithError(err).WithField("message_id", messageID).Debug("could not localize message")
		return messageID
	}

	return msg
}
