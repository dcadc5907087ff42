package gate

import (
	"context"
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/registry"
	"github.com/pitabwire/autotranslate/telemetry"
)

//nolint:gochecknoglobals // package tracer shared by every gate
var tracer = telemetry.NewTracer("github.com/pitabwire/autotranslate/gate")

type State int32

const (
	StateUnknown State = iota
	StateReady
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Transport is the part of the bus a gate needs.
type Transport interface {
	Call(ctx context.Context, target string, operation string, payload any, result any) error
	OnLifecycle(fn func(ctx context.Context, event messaging.LifecycleEvent)) messaging.Unsubscribe
}

// Gate holds requests to a target context until the target answered a
// ping, and rejects them locally once the target is known unreachable.
type Gate struct {
	target    string
	transport Transport
	cfg       config.ConfigurationReadiness

	mu    sync.Mutex
	state State
	epoch uint64

	probes      singleflight.Group
	unsubscribe messaging.Unsubscribe
}

func New(target string, transport Transport, cfg config.ConfigurationReadiness) *Gate {
	g := &Gate{
		target:    target,
		transport: transport,
		cfg:       cfg,
	}
	g.unsubscribe = transport.OnLifecycle(g.onLifecycle)
	return g
}

func (g *Gate) Target() string {
	return g.target
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Retry leaves the unreachable state so the next call probes again.
func (g *Gate) Retry() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateUnreachable {
		g.state = StateUnknown
		g.epoch++
	}
}

// Close stops following lifecycle events of the target.
func (g *Gate) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
}

func (g *Gate) onLifecycle(ctx context.Context, event messaging.LifecycleEvent) {
	if event.Context != g.target {
		return
	}
	util.Log(ctx).WithField("target", g.target).WithField("event", event.Event).Debug("target lifecycle changed")
	g.reset()
}

// reset forgets a confirmed readiness. Unreachable is only left by Retry.
func (g *Gate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateReady {
		g.state = StateUnknown
	}
	g.epoch++
}

// Call sends operation once the target is ready. Calls are never retried:
// a transport failure moves the gate back to unknown and is returned.
func (g *Gate) Call(ctx context.Context, operation string, payload any, result any) error {
	ctx, span := tracer.Start(ctx, "Call", trace.WithAttributes(
		telemetry.AttrOperationKey.String(operation),
		telemetry.AttrContextKey.String(g.target),
	))

	err := g.call(ctx, operation, payload, result)
	span.EndWith(ctx, err)
	return err
}

func (g *Gate) call(ctx context.Context, operation string, payload any, result any) error {
	if err := g.Ready(ctx, operation); err != nil {
		return err
	}

	err := g.transport.Call(ctx, g.target, operation, payload, result)
	if err != nil && (errors.Is(err, messaging.ErrTransport) || errors.Is(err, messaging.ErrNotReady)) {
		g.reset()
	}
	return err
}

// Ready blocks until the target is confirmed ready, probing it when its
// state is unknown. operation only labels the returned error.
func (g *Gate) Ready(ctx context.Context, operation string) error {
	g.mu.Lock()
	state := g.state
	epoch := g.epoch
	g.mu.Unlock()

	switch state {
	case StateReady:
		return nil
	case StateUnreachable:
		return &messaging.NotReadyError{Target: g.target, Operation: operation}
	}

	ch := g.probes.DoChan(g.target, func() (any, error) {
		return nil, g.probe(context.WithoutCancel(ctx), epoch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return &messaging.NotReadyError{Target: g.target, Operation: operation, Err: res.Err}
		}
		return nil
	case <-ctx.Done():
		return &messaging.NotReadyError{Target: g.target, Operation: operation, Err: ctx.Err()}
	}
}

func (g *Gate) probe(ctx context.Context, epoch uint64) error {
	g.mu.Lock()
	ready := g.state == StateReady
	g.mu.Unlock()
	if ready {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialBackoff()
	b.MaxInterval = g.cfg.MaxBackoff()

	log := util.Log(ctx).WithField("target", g.target)

	_, err := backoff.Retry(ctx, func() (bool, error) {
		pctx, cancel := context.WithTimeout(ctx, g.cfg.ProbeTimeout())
		defer cancel()

		callErr := g.transport.Call(pctx, g.target, registry.PingOperation, struct{}{}, nil)
		if callErr == nil {
			return true, nil
		}
		if errors.Is(callErr, messaging.ErrTransport) || errors.Is(callErr, messaging.ErrNotReady) {
			log.WithError(callErr).Debug("target not answering ping yet")
			return false, callErr
		}
		return false, backoff.Permanent(callErr)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(g.cfg.MaxAttempts()),
	)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		// A probe that raced a restart of the target says nothing about it.
		if g.epoch == epoch {
			g.state = StateUnreachable
			log.WithError(err).Warn("target unreachable")
		}
		return err
	}

	g.state = StateReady
	return nil
}
