package gate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/gate"
	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/registry"
)

type fakeTransport struct {
	mu        sync.Mutex
	calls     []string
	failPings int
	pings     atomic.Int32
	failWith  error
	listeners []func(context.Context, messaging.LifecycleEvent)
}

func (f *fakeTransport) Call(ctx context.Context, target string, operation string, _ any, _ any) error {
	f.mu.Lock()
	f.calls = append(f.calls, operation)
	failWith := f.failWith
	f.mu.Unlock()

	if operation == registry.PingOperation {
		n := f.pings.Add(1)
		time.Sleep(5 * time.Millisecond)
		if int(n) <= f.failPings {
			return &messaging.TransportError{Target: target, Operation: operation, Err: context.DeadlineExceeded}
		}
		return nil
	}

	if failWith != nil {
		return failWith
	}
	return ctx.Err()
}

func (f *fakeTransport) OnLifecycle(fn func(context.Context, messaging.LifecycleEvent)) messaging.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

func (f *fakeTransport) announce(event messaging.LifecycleEvent) {
	f.mu.Lock()
	listeners := append([]func(context.Context, messaging.LifecycleEvent){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(context.Background(), event)
	}
}

func (f *fakeTransport) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func readinessConfig(attempts uint) *config.ConfigurationDefault {
	return &config.ConfigurationDefault{
		ReadinessProbeTimeoutValue:   "50ms",
		ReadinessInitialBackoffValue: "1ms",
		ReadinessMaxBackoffValue:     "5ms",
		ReadinessMaxAttemptsValue:    attempts,
	}
}

func TestFirstCallProbesThenSends(t *testing.T) {
	transport := &fakeTransport{failPings: 2}
	g := gate.New("background", transport, readinessConfig(5))
	defer g.Close()

	require.Equal(t, gate.StateUnknown, g.State())
	require.NoError(t, g.Call(t.Context(), "translate", nil, nil))
	require.Equal(t, gate.StateReady, g.State())
	require.Equal(t, []string{"ping", "ping", "ping", "translate"}, transport.operations())

	require.NoError(t, g.Call(t.Context(), "getConfig", nil, nil))
	require.Equal(t, int32(3), transport.pings.Load())
}

func TestConcurrentCallersShareOneProbe(t *testing.T) {
	transport := &fakeTransport{failPings: 1}
	g := gate.New("background", transport, readinessConfig(5))
	defer g.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Call(t.Context(), "translate", nil, nil))
		}()
	}
	wg.Wait()

	require.Equal(t, int32(2), transport.pings.Load())
}

func TestUnreachableRejectsLocallyUntilRetry(t *testing.T) {
	transport := &fakeTransport{failPings: 3}
	g := gate.New("background", transport, readinessConfig(3))
	defer g.Close()

	err := g.Call(t.Context(), "translate", nil, nil)
	require.ErrorIs(t, err, messaging.ErrNotReady)
	require.Equal(t, gate.StateUnreachable, g.State())

	err = g.Call(t.Context(), "translate", nil, nil)
	require.ErrorIs(t, err, messaging.ErrNotReady)
	require.Equal(t, int32(3), transport.pings.Load())
	require.NotContains(t, transport.operations(), "translate")

	g.Retry()
	require.Equal(t, gate.StateUnknown, g.State())
	require.NoError(t, g.Call(t.Context(), "translate", nil, nil))
	require.Equal(t, gate.StateReady, g.State())
}

func TestTransportFailureAfterReadyIsNotRetried(t *testing.T) {
	transport := &fakeTransport{}
	g := gate.New("background", transport, readinessConfig(3))
	defer g.Close()

	require.NoError(t, g.Call(t.Context(), "translate", nil, nil))

	transport.mu.Lock()
	transport.failWith = &messaging.TransportError{Target: "background", Err: messaging.ErrBusClosed}
	transport.mu.Unlock()

	before := len(transport.operations())
	err := g.Call(t.Context(), "translate", nil, nil)
	require.ErrorIs(t, err, messaging.ErrTransport)
	require.Len(t, transport.operations(), before+1)
	require.Equal(t, gate.StateUnknown, g.State())
}

func TestRemoteFailureKeepsReadiness(t *testing.T) {
	transport := &fakeTransport{}
	g := gate.New("background", transport, readinessConfig(3))
	defer g.Close()

	require.NoError(t, g.Call(t.Context(), "translate", nil, nil))

	transport.mu.Lock()
	transport.failWith = &messaging.RemoteError{Operation: "translate", ErrKind: messaging.KindProvider}
	transport.mu.Unlock()

	require.ErrorIs(t, g.Call(t.Context(), "translate", nil, nil), messaging.ErrRemote)
	require.Equal(t, gate.StateReady, g.State())
}

func TestTargetRestartResetsReadiness(t *testing.T) {
	transport := &fakeTransport{}
	g := gate.New("background", transport, readinessConfig(3))
	defer g.Close()

	require.NoError(t, g.Call(t.Context(), "translate", nil, nil))

	transport.announce(messaging.LifecycleEvent{Event: messaging.EventContextStarted, Context: "page-7"})
	require.Equal(t, gate.StateReady, g.State())

	transport.announce(messaging.LifecycleEvent{Event: messaging.EventContextStopped, Context: "background"})
	require.Equal(t, gate.StateUnknown, g.State())

	require.NoError(t, g.Call(t.Context(), "translate", nil, nil))
	require.Equal(t, int32(2), transport.pings.Load())
}

func TestCanceledCallerDoesNotWaitForProbe(t *testing.T) {
	transport := &fakeTransport{failPings: 100}
	g := gate.New("background", transport, readinessConfig(100))
	defer g.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	err := g.Call(ctx, "translate", nil, nil)
	require.ErrorIs(t, err, messaging.ErrNotReady)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
