package datastore

import "time"

const (
	defaultSlowQuery   = 200 * time.Millisecond
	defaultPingTimeout = 10 * time.Second
)

type Option func(*options)

type options struct {
	maxConns        int32
	maxConnLifetime time.Duration
	pingTimeout     time.Duration

	simpleProtocol bool

	logQueries bool
	slowQuery  time.Duration
}

func defaultOptions() *options {
	return &options{
		pingTimeout:    defaultPingTimeout,
		simpleProtocol: true,
		slowQuery:      defaultSlowQuery,
	}
}

// WithPoolSize caps the pgx pool. Zero keeps the pgx default.
func WithPoolSize(maxConns int32, maxLifetime time.Duration) Option {
	return func(o *options) {
		o.maxConns = maxConns
		o.maxConnLifetime = maxLifetime
	}
}

// WithExtendedProtocol turns off the simple protocol, for servers that are
// not behind a transaction pooler.
func WithExtendedProtocol() Option {
	return func(o *options) {
		o.simpleProtocol = false
	}
}

// WithQueryLogging logs every query at info. Queries slower than slow are
// logged at warn whether or not every query is.
func WithQueryLogging(all bool, slow time.Duration) Option {
	return func(o *options) {
		o.logQueries = all
		o.slowQuery = slow
	}
}
