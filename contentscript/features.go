package contentscript

import (
	"context"

	"github.com/pitabwire/autotranslate/settings"
)

// Direction is the language pair a page is translated with.
type Direction struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PageTranslation translates a whole page. It is created stopped and lives
// as long as the page.
type PageTranslation interface {
	Run(ctx context.Context, from string, to string) error
	Stop(ctx context.Context) error
	Running() bool
	// Direction reports the active direction. ok is false when stopped.
	Direction() (Direction, bool)
	UpdateConfig(cfg settings.PageTranslator)
}

// SelectionTranslation is the widget translating selected text.
type SelectionTranslation interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
}

// SelectionFactory builds a stopped widget for the given settings and page language.
type SelectionFactory func(cfg settings.SelectTranslator, pageLanguage string) SelectionTranslation
