// Package data holds the storage primitives shared by the cache backends
// and the history database.
package data

import (
	"net/url"
	"strings"
	"time"
)

// Backend is the storage family a DSN points at.
type Backend int

const (
	BackendUnknown Backend = iota
	BackendMemory
	BackendRedis
	BackendValkey
	BackendNats
	BackendPostgres
)

func (b Backend) String() string {
	switch b {
	case BackendMemory:
		return "mem"
	case BackendRedis:
		return "redis"
	case BackendValkey:
		return "valkey"
	case BackendNats:
		return "nats"
	case BackendPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// DSN is a storage connection string such as mem://, redis://host/0 or
// postgres://user@host/db.
type DSN string

// Backend picks the storage family from the scheme. An empty DSN is memory.
func (d DSN) Backend() Backend {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return BackendMemory
	}

	scheme, _, found := strings.Cut(s, "://")
	if !found {
		return BackendUnknown
	}

	switch strings.ToLower(scheme) {
	case "mem":
		return BackendMemory
	case "redis", "rediss":
		return BackendRedis
	case "valkey", "valkeys":
		return BackendValkey
	case "nats", "tls":
		return BackendNats
	case "postgres", "postgresql":
		return BackendPostgres
	default:
		return BackendUnknown
	}
}

func (d DSN) IsMem() bool      { return d.Backend() == BackendMemory }
func (d DSN) IsRedis() bool    { return d.Backend() == BackendRedis }
func (d DSN) IsValkey() bool   { return d.Backend() == BackendValkey }
func (d DSN) IsNats() bool     { return d.Backend() == BackendNats }
func (d DSN) IsPostgres() bool { return d.Backend() == BackendPostgres }

// WithScheme swaps the scheme, leaving everything else intact.
func (d DSN) WithScheme(scheme string) (DSN, error) {
	u, err := url.Parse(string(d))
	if err != nil {
		return "", err
	}
	u.Scheme = scheme
	return DSN(u.String()), nil
}

// Name returns the path without slashes, used as a bucket or database name.
func (d DSN) Name() string {
	u, err := url.Parse(string(d))
	if err != nil {
		return ""
	}
	return strings.Trim(u.Path, "/")
}

// MaxAge reads the max_age query parameter, returning fallback when it is
// missing or malformed.
func (d DSN) MaxAge(fallback time.Duration) time.Duration {
	u, err := url.Parse(string(d))
	if err != nil {
		return fallback
	}
	age, err := time.ParseDuration(u.Query().Get("max_age"))
	if err != nil || age < 0 {
		return fallback
	}
	return age
}

// Redacted hides the password so the DSN can be logged.
func (d DSN) Redacted() string {
	u, err := url.Parse(string(d))
	if err != nil {
		return d.Backend().String() + "://"
	}
	return u.Redacted()
}

func (d DSN) String() string {
	return string(d)
}
