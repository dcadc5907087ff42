package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/messaging"
)

// PingOperation answers readiness probes. It must be the last factory.
const PingOperation = "ping"

var (
	ErrInvalidFactories  = errors.New("invalid handler factory list")
	ErrAlreadyRegistered = errors.New("handlers already registered")
)

// HandlerFunc serves one operation.
type HandlerFunc func(ctx context.Context, payload []byte) (any, error)

// Factory builds the handler of one operation from the bundle of shared
// dependencies of the owning context.
type Factory[B any] struct {
	Name  string
	Build func(ctx context.Context, bundle B) (HandlerFunc, error)
}

// Registry holds the handlers of one context. Handlers become callable
// only once every factory has been built.
type Registry[B any] struct {
	mu         sync.RWMutex
	registered bool
	entries    map[string]HandlerFunc
	order      []string
}

func New[B any]() *Registry[B] {
	return &Registry[B]{}
}

// Validate checks a factory list without building anything.
func Validate[B any](factories []Factory[B]) error {
	if len(factories) == 0 {
		return fmt.Errorf("%w: empty list", ErrInvalidFactories)
	}

	seen := make(map[string]int, len(factories))
	for i, f := range factories {
		if f.Name == "" {
			return fmt.Errorf("%w: factory %d has no name", ErrInvalidFactories, i)
		}
		if f.Build == nil {
			return fmt.Errorf("%w: factory %q has no builder", ErrInvalidFactories, f.Name)
		}
		if prev, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: %q at %d duplicates position %d", ErrInvalidFactories, f.Name, i, prev)
		}
		seen[f.Name] = i
	}

	last := len(factories) - 1
	pos, ok := seen[PingOperation]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrInvalidFactories, PingOperation)
	}
	if pos != last {
		return fmt.Errorf("%w: %q must be last, found at %d", ErrInvalidFactories, PingOperation, pos)
	}
	return nil
}

// Register validates factories, then builds them strictly in order. The
// registry accepts a single successful registration.
func (r *Registry[B]) Register(ctx context.Context, bundle B, factories []Factory[B]) error {
	if err := Validate(factories); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return ErrAlreadyRegistered
	}

	entries := make(map[string]HandlerFunc, len(factories))
	order := make([]string, 0, len(factories))
	for _, f := range factories {
		handler, err := f.Build(ctx, bundle)
		if err != nil {
			return fmt.Errorf("could not build handler %q: %w", f.Name, err)
		}
		if handler == nil {
			return fmt.Errorf("%w: factory %q built no handler", ErrInvalidFactories, f.Name)
		}
		entries[f.Name] = handler
		order = append(order, f.Name)
	}

	r.entries = entries
	r.order = order
	r.registered = true

	util.Log(ctx).WithField("operations", len(order)).Debug("handlers registered")
	return nil
}

// Registered reports whether Register completed.
func (r *Registry[B]) Registered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registered
}

// Operations lists the registered operations in registration order.
func (r *Registry[B]) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Dispatch runs the handler of operation.
func (r *Registry[B]) Dispatch(ctx context.Context, operation string, payload []byte) (any, error) {
	r.mu.RLock()
	registered := r.registered
	handler, ok := r.entries[operation]
	r.mu.RUnlock()

	if !registered {
		return nil, fmt.Errorf("%w: handlers are not registered yet", messaging.ErrNotReady)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", messaging.ErrUnknownOperation, operation)
	}

	return handler(ctx, payload)
}

// Typed adapts a handler taking a decoded request. An absent or null
// payload decodes to the zero value of In.
func Typed[In any, Out any](fn func(ctx context.Context, in In) (Out, error)) HandlerFunc {
	return func(ctx context.Context, payload []byte) (any, error) {
		var in In
		if len(payload) > 0 && string(payload) != "null" {
			if err := json.Unmarshal(payload, &in); err != nil {
				return nil, fmt.Errorf("%w: %w", messaging.ErrInvalidPayload, err)
			}
		}
		return fn(ctx, in)
	}
}

// Ping builds the readiness handler.
func Ping[B any]() Factory[B] {
	return Factory[B]{
		Name: PingOperation,
		Build: func(_ context.Context, _ B) (HandlerFunc, error) {
			return func(_ context.Context, _ []byte) (any, error) {
				return struct{}{}, nil
			}, nil
		},
	}
}
