// Package workerpool runs the handlers of inbound messages on a bounded set
// of goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/config"
)

var ErrShutdown = errors.New("worker pool is shut down")

// Task is one unit of work. ctx carries the submitter's values but not its
// cancellation once the task has been accepted.
type Task func(ctx context.Context) error

type Manager interface {
	// Submit runs task once. Failures are logged, redelivery is up to the caller.
	Submit(ctx context.Context, name string, task Task) error
	// InFlight counts accepted tasks that have not finished.
	InFlight() int
	StopError(ctx context.Context, err error)
	// Shutdown waits for in flight tasks until ctx ends, then releases the workers.
	Shutdown(ctx context.Context) error
}

type manager struct {
	pool     pool
	stopErr  func(ctx context.Context, err error)
	inFlight sync.WaitGroup
	count    atomic.Int64
	closed   atomic.Bool
}

// NewManager builds the pool one context uses to process inbound messages.
// stopOnErr is called when a subscriber can no longer make progress.
func NewManager(
	ctx context.Context,
	cfg config.ConfigurationWorkerPool,
	stopOnErr func(ctx context.Context, err error),
	opts ...Option,
) (Manager, error) {
	o := optionsFromConfig(cfg, util.Log(ctx))
	for _, opt := range opts {
		opt(o)
	}

	p, err := newPool(o)
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	if stopOnErr == nil {
		stopOnErr = func(ctx context.Context, err error) {
			util.Log(ctx).WithError(err).Error("worker pool stop requested")
		}
	}
	return &manager{pool: p, stopErr: stopOnErr}, nil
}

func (m *manager) Submit(ctx context.Context, name string, task Task) error {
	if task == nil {
		return fmt.Errorf("task %s has no function", name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed.Load() {
		return ErrShutdown
	}

	ctx = context.WithoutCancel(ctx)
	m.inFlight.Add(1)
	m.count.Add(1)
	err := m.pool.Submit(func() {
		defer m.done()
		if taskErr := task(ctx); taskErr != nil && !errors.Is(taskErr, context.Canceled) {
			util.Log(ctx).WithField("task", name).WithError(taskErr).Debug("task failed")
		}
	})
	if err != nil {
		m.done()
		return err
	}
	return nil
}

func (m *manager) done() {
	m.count.Add(-1)
	m.inFlight.Done()
}

func (m *manager) InFlight() int {
	return int(m.count.Load())
}

func (m *manager) StopError(ctx context.Context, err error) {
	m.stopErr(ctx, err)
}

func (m *manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		m.inFlight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("worker pool shut down with %d tasks in flight: %w", m.InFlight(), ctx.Err())
	}
	m.pool.release()
	return err
}
