package contentscript

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pitabwire/autotranslate/localization"
	"github.com/pitabwire/autotranslate/settings"
)

// OpTranslate is the background operation features translate through.
const OpTranslate = "translate"

// ErrSelectionStopped is returned when the selection widget is asked to translate while stopped.
var ErrSelectionStopped = errors.New("selection translator is not running")

// Caller sends an operation to the background context.
type Caller interface {
	Call(ctx context.Context, operation string, payload any, result any) error
}

type translateRequest struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Document is the translatable content of a page.
type Document struct {
	mu sync.RWMutex

	host string
	// lang is the language the page declares.
	lang string
	// contentLang is the language detected from the page text, when known.
	contentLang string

	title    string
	nodes    []string
	original []string
	origTit  string
}

func NewDocument(host string, lang string, title string, nodes ...string) *Document {
	return &Document{host: host, lang: lang, title: title, nodes: nodes}
}

func (d *Document) Host() string {
	return d.host
}

// Language returns the page language, preferring the detected one when
// byContent is set. The result is "" when unknown.
func (d *Document) Language(byContent bool) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if byContent && d.contentLang != "" {
		return localization.Normalize(d.contentLang)
	}
	return localization.Normalize(d.lang)
}

// SetContentLanguage records the language detected from the page text.
func (d *Document) SetContentLanguage(lang string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contentLang = lang
}

func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.title
}

// Texts returns a copy of the text nodes as currently shown.
func (d *Document) Texts() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.nodes...)
}

// PageTranslator replaces the text of a Document with its translation and
// restores the original on Stop.
type PageTranslator struct {
	doc    *Document
	caller Caller

	mu        sync.Mutex
	cfg       settings.PageTranslator
	running   bool
	direction Direction
}

func NewPageTranslator(doc *Document, caller Caller) *PageTranslator {
	return &PageTranslator{doc: doc, caller: caller}
}

func (p *PageTranslator) UpdateConfig(cfg settings.PageTranslator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

func (p *PageTranslator) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PageTranslator) Direction() (Direction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.direction, p.running
}

// Run translates every text node, and the title when configured. On failure
// the page is left untouched.
func (p *PageTranslator) Run(ctx context.Context, from string, to string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("page is already translated to %s", p.direction.To)
	}

	p.doc.mu.RLock()
	texts := append([]string(nil), p.doc.nodes...)
	title := p.doc.title
	p.doc.mu.RUnlock()

	translated := make([]string, len(texts))
	for i, text := range texts {
		if err := p.caller.Call(ctx, OpTranslate, translateRequest{Text: text, From: from, To: to}, &translated[i]); err != nil {
			return err
		}
	}

	translatedTitle := title
	if p.cfg.TranslateTitles && title != "" {
		if err := p.caller.Call(ctx, OpTranslate, translateRequest{Text: title, From: from, To: to}, &translatedTitle); err != nil {
			return err
		}
	}

	p.doc.mu.Lock()
	p.doc.original = texts
	p.doc.origTit = title
	p.doc.nodes = translated
	p.doc.title = translatedTitle
	p.doc.mu.Unlock()

	p.running = true
	p.direction = Direction{From: from, To: to}
	return nil
}

// Stop restores the original text.
func (p *PageTranslator) Stop(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.doc.mu.Lock()
	p.doc.nodes = p.doc.original
	p.doc.title = p.doc.origTit
	p.doc.original = nil
	p.doc.mu.Unlock()

	p.running = false
	p.direction = Direction{}
	return nil
}

// SelectionWidget translates selected text while running.
type SelectionWidget struct {
	caller       Caller
	cfg          settings.SelectTranslator
	pageLanguage string
	target       func() string

	mu      sync.Mutex
	running bool
}

// NewSelectionFactory returns a SelectionFactory building widgets that
// translate into the language returned by target.
func NewSelectionFactory(caller Caller, target func() string) SelectionFactory {
	return func(cfg settings.SelectTranslator, pageLanguage string) SelectionTranslation {
		return &SelectionWidget{caller: caller, cfg: cfg, pageLanguage: pageLanguage, target: target}
	}
}

func (w *SelectionWidget) Settings() settings.SelectTranslator {
	return w.cfg
}

func (w *SelectionWidget) PageLanguage() string {
	return w.pageLanguage
}

func (w *SelectionWidget) Start(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = true
	return nil
}

func (w *SelectionWidget) Stop(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	return nil
}

func (w *SelectionWidget) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Translate translates a selection from the page language.
func (w *SelectionWidget) Translate(ctx context.Context, text string) (string, error) {
	if !w.Running() {
		return "", ErrSelectionStopped
	}

	from := w.pageLanguage
	if from == "" {
		from = "auto"
	}

	var translation string
	err := w.caller.Call(ctx, OpTranslate, translateRequest{Text: text, From: from, To: w.target()}, &translation)
	return translation, err
}
