package cache

import (
	"time"

	"github.com/pitabwire/autotranslate/data"
)

// Option configures a cache backend.
type Option func(*Options)

// Options holds the cache backend configuration.
type Options struct {
	DSN    data.DSN
	Name   string
	MaxAge time.Duration
}

// NewOptions applies opts over the defaults shared by every backend.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Name: "default",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// KeyPrefix namespaces keys on shared servers so one logical cache can be flushed alone.
func (o *Options) KeyPrefix() string {
	return o.Name + ":"
}

func WithDSN(dsn data.DSN) Option {
	return func(o *Options) {
		o.DSN = dsn
	}
}

func WithName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Name = name
		}
	}
}

// WithMaxAge returns an Option to configure the default expiry of entries. Zero keeps entries forever.
func WithMaxAge(maxAge time.Duration) Option {
	return func(o *Options) {
		o.MaxAge = maxAge
	}
}
