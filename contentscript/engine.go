// Package contentscript keeps the page level features of one page in step
// with the settings broadcast by the background context.
package contentscript

import (
	"context"
	"fmt"
	"sync"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/settings"
	"github.com/pitabwire/autotranslate/telemetry"
)

const (
	featurePage      = "pageTranslator"
	featureSelection = "selectTranslator"

	actionStart = "start"
	actionStop  = "stop"
)

// InternalConsistencyFault reports a feature whose state contradicts itself.
type InternalConsistencyFault struct {
	Feature string
	Reason  string
}

func (e *InternalConsistencyFault) Error() string {
	return fmt.Sprintf("internal consistency fault in %s: %s", e.Feature, e.Reason)
}

func (e *InternalConsistencyFault) Is(target error) bool {
	return target == messaging.ErrInternalConsistency
}

func (e *InternalConsistencyFault) Kind() string {
	return messaging.KindInternal
}

// Engine owns the page features and the settings they were last reconciled
// against. All transitions happen under one lock.
type Engine struct {
	mu           sync.Mutex
	baseline     settings.Tree
	pageLanguage string

	page         PageTranslation
	newSelection SelectionFactory
	selection    SelectionTranslation

	transitions metric.Int64Counter
}

// NewEngine builds the features for initial. The selection widget starts
// when enabled; page translation stays stopped until asked to run.
func NewEngine(
	ctx context.Context,
	initial settings.Tree,
	pageLanguage string,
	page PageTranslation,
	newSelection SelectionFactory,
) (*Engine, error) {
	e := &Engine{
		baseline:     initial,
		pageLanguage: pageLanguage,
		page:         page,
		newSelection: newSelection,
		transitions: telemetry.DimensionlessMeasure(
			"github.com/pitabwire/autotranslate/contentscript",
			"/feature/transitions",
			"Start and stop transitions of page features",
		),
	}

	e.page.UpdateConfig(initial.PageTranslator)

	if initial.ContentScript.SelectTranslator.Enabled {
		e.selection = e.newSelection(initial.SelectTranslator, pageLanguage)
		if err := e.startSelection(ctx); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Config returns the settings the features currently reflect.
func (e *Engine) Config() settings.Tree {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline
}

func (e *Engine) PageLanguage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pageLanguage
}

// PageRunning reports whether the page is being translated.
func (e *Engine) PageRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page.Running()
}

// PageDirection is the active page translation direction, if any.
func (e *Engine) PageDirection() (Direction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.page.Running() {
		return Direction{}, false
	}
	return e.page.Direction()
}

// SelectionRunning reports whether the selection widget is running.
func (e *Engine) SelectionRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection != nil && e.selection.Running()
}

// Selection returns the current widget, or nil when disabled.
func (e *Engine) Selection() SelectionTranslation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection
}

// Reconcile moves the features from the baseline settings to next. The
// baseline is replaced only when every step succeeded.
func (e *Engine) Reconcile(ctx context.Context, next settings.Tree) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reconcile(ctx, e.baseline, next, false); err != nil {
		util.Log(ctx).WithError(err).WithField("revision", next.Revision).Error("reconcile failed")
		return err
	}
	e.baseline = next
	return nil
}

// SetPageLanguage records a newly detected page language and rebuilds the
// language dependent widget with the current settings.
func (e *Engine) SetPageLanguage(ctx context.Context, lang string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lang == e.pageLanguage {
		return nil
	}
	e.pageLanguage = lang
	return e.reconcile(ctx, e.baseline, e.baseline, true)
}

func (e *Engine) reconcile(ctx context.Context, prev settings.Tree, next settings.Tree, rebuildSelection bool) error {
	enabled := next.ContentScript.SelectTranslator.Enabled

	if prev.ContentScript != next.ContentScript {
		switch {
		case enabled && e.selection == nil:
			e.selection = e.newSelection(next.SelectTranslator, e.pageLanguage)
		case !enabled && e.selection != nil:
			if err := e.stopSelection(ctx); err != nil {
				return err
			}
			e.selection = nil
		}

		if err := e.applyExclusion(ctx, next); err != nil {
			return err
		}
	}

	if (rebuildSelection || prev.SelectTranslator != next.SelectTranslator) && enabled && e.selection != nil {
		wasRunning := e.selection.Running()
		if err := e.stopSelection(ctx); err != nil {
			return err
		}
		e.selection = e.newSelection(next.SelectTranslator, e.pageLanguage)
		if wasRunning {
			if err := e.startSelection(ctx); err != nil {
				return err
			}
		}
	}

	if prev.PageTranslator != next.PageTranslator {
		if !e.page.Running() {
			e.page.UpdateConfig(next.PageTranslator)
			return nil
		}

		direction, ok := e.page.Direction()
		if !ok || direction.From == "" || direction.To == "" {
			return &InternalConsistencyFault{Feature: featurePage, Reason: "running without a translation direction"}
		}
		if err := e.stopPage(ctx); err != nil {
			return err
		}
		e.page.UpdateConfig(next.PageTranslator)
		if err := e.runPage(ctx, direction); err != nil {
			return err
		}
	}
	return nil
}

// selectionWanted is the mutual exclusion rule between the widget and page translation.
func (e *Engine) selectionWanted(cfg settings.Tree) bool {
	cs := cfg.ContentScript.SelectTranslator
	return cs.Enabled && (!cs.DisableWhileTranslatePage || !e.page.Running())
}

func (e *Engine) applyExclusion(ctx context.Context, cfg settings.Tree) error {
	if e.selection == nil {
		return nil
	}
	if e.selectionWanted(cfg) {
		return e.startSelection(ctx)
	}
	return e.stopSelection(ctx)
}

// TranslatePage runs page translation in direction, stopping the widget
// first when the two must not run together.
func (e *Engine) TranslatePage(ctx context.Context, direction Direction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page.Running() {
		current, _ := e.page.Direction()
		if current == direction {
			return nil
		}
		if err := e.stopPage(ctx); err != nil {
			return err
		}
	}

	cs := e.baseline.ContentScript.SelectTranslator
	if cs.DisableWhileTranslatePage && e.selection != nil {
		if err := e.stopSelection(ctx); err != nil {
			return err
		}
	}
	return e.runPage(ctx, direction)
}

// RestorePage stops page translation and restarts the widget when allowed.
func (e *Engine) RestorePage(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.stopPage(ctx); err != nil {
		return err
	}
	return e.applyExclusion(ctx, e.baseline)
}

func (e *Engine) startSelection(ctx context.Context) error {
	if e.selection == nil || e.selection.Running() {
		return nil
	}
	if err := e.selection.Start(ctx); err != nil {
		return fmt.Errorf("could not start selection translator: %w", err)
	}
	e.count(ctx, featureSelection, actionStart)
	return nil
}

func (e *Engine) stopSelection(ctx context.Context) error {
	if e.selection == nil || !e.selection.Running() {
		return nil
	}
	if err := e.selection.Stop(ctx); err != nil {
		return fmt.Errorf("could not stop selection translator: %w", err)
	}
	e.count(ctx, featureSelection, actionStop)
	return nil
}

func (e *Engine) runPage(ctx context.Context, direction Direction) error {
	if e.page.Running() {
		return nil
	}
	if err := e.page.Run(ctx, direction.From, direction.To); err != nil {
		return fmt.Errorf("could not translate page: %w", err)
	}
	e.count(ctx, featurePage, actionStart)
	return nil
}

func (e *Engine) stopPage(ctx context.Context) error {
	if !e.page.Running() {
		return nil
	}
	if err := e.page.Stop(ctx); err != nil {
		return fmt.Errorf("could not restore page: %w", err)
	}
	e.count(ctx, featurePage, actionStop)
	return nil
}

func (e *Engine) count(ctx context.Context, feature string, action string) {
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feature", feature),
		attribute.String("action", action),
	))
}
