package contentscript

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/broadcast"
	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/gate"
	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/registry"
	"github.com/pitabwire/autotranslate/settings"
)

// OpGetConfig fetches the settings snapshot from the background context.
const OpGetConfig = "getConfig"

// Bus is the part of messaging.Bus a page context uses.
type Bus interface {
	gate.Transport
	Serve(ctx context.Context, dispatcher messaging.Dispatcher) error
	OnBroadcast(fn func(ctx context.Context, event messaging.BroadcastEvent)) messaging.Unsubscribe
}

// Page is the content script of one loaded page.
type Page struct {
	doc        *Document
	background string
	gate       *gate.Gate
	engine     *Engine
	receiver   *broadcast.Receiver
	auto       *AutoTranslator
	handlers   *registry.Registry[Bundle]

	unsubscribe []messaging.Unsubscribe

	mu        sync.Mutex
	closed    bool
	refreshes sync.WaitGroup
}

// Load fetches the settings from background, builds the page features,
// follows settings broadcasts and serves the page handlers.
func Load(ctx context.Context, bus Bus, background string, cfg config.ConfigurationReadiness, doc *Document) (*Page, error) {
	g := gate.New(background, bus, cfg)

	var initial settings.Tree
	if err := g.Call(ctx, OpGetConfig, nil, &initial); err != nil {
		g.Close()
		return nil, fmt.Errorf("could not load settings: %w", err)
	}

	p := &Page{
		doc:        doc,
		background: background,
		gate:       g,
		handlers:   registry.New[Bundle](),
	}

	target := func() string { return p.engine.Config().Language }
	engine, err := NewEngine(
		ctx,
		initial,
		doc.Language(initial.PageTranslator.DetectLanguageByContent),
		NewPageTranslator(doc, g),
		NewSelectionFactory(g, target),
	)
	if err != nil {
		g.Close()
		return nil, err
	}
	p.engine = engine

	p.receiver = broadcast.NewReceiver(initial.Revision, func(ctx context.Context, tree settings.Tree) {
		// Faults are logged by the engine; the next snapshot retries from the old baseline.
		_ = p.engine.Reconcile(ctx, tree)
	})
	p.unsubscribe = append(p.unsubscribe,
		bus.OnBroadcast(p.receiver.Handle),
		bus.OnLifecycle(p.onLifecycle),
	)

	// Changes committed between the first fetch and the subscription were
	// not broadcast to this page.
	if err = p.Refresh(ctx); err != nil {
		util.Log(ctx).WithError(err).Warn("could not refresh settings after subscribing")
	}

	p.auto = NewAutoTranslator(p.engine, doc.Host(), func(_ context.Context, byContent bool) string {
		return doc.Language(byContent)
	}, RemotePreferences{Caller: g})

	if err = p.handlers.Register(ctx, Bundle{Engine: p.engine, Document: doc}, Factories()); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Serve answers requests addressed to this page.
func (p *Page) Serve(ctx context.Context, bus Bus) error {
	return bus.Serve(ctx, p.handlers)
}

// Refresh fetches the current settings and reconciles when they are newer.
func (p *Page) Refresh(ctx context.Context) error {
	var tree settings.Tree
	if err := p.gate.Call(ctx, OpGetConfig, nil, &tree); err != nil {
		return err
	}
	event, err := broadcast.Event(tree)
	if err != nil {
		return err
	}
	p.receiver.Handle(ctx, event)
	return nil
}

// onLifecycle resyncs with a restarted background context. Its storage may
// be fresh, so the revision baseline is dropped before refreshing.
func (p *Page) onLifecycle(ctx context.Context, event messaging.LifecycleEvent) {
	if event.Context != p.background || event.Event != messaging.EventContextStarted {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.gate.Retry()
	p.receiver.Rebase()

	// Refresh calls back over the bus, so it must not block the listener.
	p.refreshes.Add(1)
	go func() {
		defer p.refreshes.Done()
		rctx := context.WithoutCancel(ctx)
		if err := p.Refresh(rctx); err != nil {
			util.Log(rctx).WithError(err).Warn("could not refresh settings after background restart")
		}
	}()
}

// Interactive runs the auto translate decision. Only the first call decides.
func (p *Page) Interactive(ctx context.Context) (bool, error) {
	translated, err := p.auto.Run(ctx)
	var fault *InternalConsistencyFault
	if errors.As(err, &fault) {
		util.Log(ctx).WithError(err).Error("auto translation hit an inconsistent page state")
	}
	return translated, err
}

func (p *Page) Engine() *Engine {
	return p.engine
}

func (p *Page) Gate() *gate.Gate {
	return p.gate
}

func (p *Page) Document() *Document {
	return p.doc
}

// Dispatch runs a page request in process.
func (p *Page) Dispatch(ctx context.Context, operation string, payload []byte) (any, error) {
	return p.handlers.Dispatch(ctx, operation, payload)
}

// Close stops following broadcasts and the background lifecycle.
func (p *Page) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	for _, fn := range p.unsubscribe {
		fn()
	}
	p.refreshes.Wait()
	p.gate.Close()
}
