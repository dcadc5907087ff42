package workerpool

import (
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/config"
)

// Options tunes the ants pools behind a Manager.
type Options struct {
	PoolCount      int
	PoolCapacity   int
	MaxBlocking    int
	ExpiryDuration time.Duration
	Nonblocking    bool
	PanicHandler   func(any)
	Logger         *util.LogEntry
}

type Option func(*Options)

func WithPoolCount(count int) Option {
	return func(o *Options) {
		o.PoolCount = count
	}
}

func WithPoolCapacity(capacity int) Option {
	return func(o *Options) {
		o.PoolCapacity = capacity
	}
}

// WithNonblocking makes Submit fail with ants.ErrPoolOverload instead of
// waiting for a free worker.
func WithNonblocking(nonblocking bool) Option {
	return func(o *Options) {
		o.Nonblocking = nonblocking
	}
}

func WithPanicHandler(handler func(any)) Option {
	return func(o *Options) {
		o.PanicHandler = handler
	}
}

func optionsFromConfig(cfg config.ConfigurationWorkerPool, log *util.LogEntry) *Options {
	o := &Options{
		PoolCount:      1,
		PoolCapacity:   100,
		MaxBlocking:    runtime.NumCPU(),
		ExpiryDuration: time.Second,
		Logger:         log,
	}
	if cfg == nil {
		return o
	}
	o.PoolCount = cfg.GetCount()
	o.PoolCapacity = max(1, cfg.GetCapacity())
	o.MaxBlocking = runtime.NumCPU() * max(1, cfg.GetCPUFactor())
	o.ExpiryDuration = cfg.GetExpiryDuration()
	return o
}

// pool is either one ants.Pool or an ants.MultiPool balanced by load.
type pool interface {
	Submit(task func()) error
	Running() int
	release()
}

func newPool(o *Options) (pool, error) {
	antsOpts := []ants.Option{
		ants.WithNonblocking(o.Nonblocking),
		ants.WithLogger(o.Logger),
	}
	if o.ExpiryDuration > 0 {
		antsOpts = append(antsOpts, ants.WithExpiryDuration(o.ExpiryDuration))
	}
	if o.MaxBlocking > 0 && !o.Nonblocking {
		antsOpts = append(antsOpts, ants.WithMaxBlockingTasks(o.MaxBlocking))
	}
	if o.PanicHandler != nil {
		antsOpts = append(antsOpts, ants.WithPanicHandler(o.PanicHandler))
	}

	if o.PoolCount > 1 {
		mp, err := ants.NewMultiPool(o.PoolCount, o.PoolCapacity, ants.LeastTasks, antsOpts...)
		if err != nil {
			return nil, err
		}
		return multiPool{mp}, nil
	}

	p, err := ants.NewPool(o.PoolCapacity, antsOpts...)
	if err != nil {
		return nil, err
	}
	return singlePool{p}, nil
}

type singlePool struct{ *ants.Pool }

func (p singlePool) release() { p.Release() }

type multiPool struct{ *ants.MultiPool }

func (p multiPool) release() { _ = p.ReleaseTimeout(time.Second) }

