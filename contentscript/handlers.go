package contentscript

import (
	"context"
	"fmt"
	"strings"

	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/registry"
)

// Operations served by a page context.
const (
	OpGetPageTranslateState = "getPageTranslateState"
	OpGetPageLanguage       = "getPageLanguage"
	OpEnableTranslatePage   = "enableTranslatePage"
	OpDisableTranslatePage  = "disableTranslatePage"
)

// Bundle is handed to every page handler factory.
type Bundle struct {
	Engine   *Engine
	Document *Document
}

// PageTranslateState describes the translation of a page.
type PageTranslateState struct {
	IsTranslated bool       `json:"isTranslated"`
	Direction    *Direction `json:"translateState,omitempty"`
}

type empty struct{}

// Factories lists the page handlers. ping is last.
func Factories() []registry.Factory[Bundle] {
	return []registry.Factory[Bundle]{
		handler(OpGetPageTranslateState, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(_ context.Context, _ empty) (PageTranslateState, error) {
				direction, ok := b.Engine.PageDirection()
				if !ok {
					return PageTranslateState{}, nil
				}
				return PageTranslateState{IsTranslated: true, Direction: &direction}, nil
			})
		}),
		handler(OpGetPageLanguage, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(_ context.Context, _ empty) (string, error) {
				if lang := b.Engine.PageLanguage(); lang != "" {
					return lang, nil
				}
				return b.Document.Language(b.Engine.Config().PageTranslator.DetectLanguageByContent), nil
			})
		}),
		handler(OpEnableTranslatePage, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, in Direction) (*empty, error) {
				if strings.TrimSpace(in.From) == "" || strings.TrimSpace(in.To) == "" {
					return nil, fmt.Errorf("%w: from and to are required", messaging.ErrInvalidPayload)
				}
				return nil, b.Engine.TranslatePage(ctx, in)
			})
		}),
		handler(OpDisableTranslatePage, func(b Bundle) registry.HandlerFunc {
			return registry.Typed(func(ctx context.Context, _ empty) (*empty, error) {
				return nil, b.Engine.RestorePage(ctx)
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
