package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/pitabwire/util"
)

const defaultMaxLoggedBody = 1024

//nolint:gochecknoglobals // compiled once
var secretPattern = regexp.MustCompile(`("?api_key"?\s*[:=]\s*"?)[^"&,}\s]+`)

// LoggingTransportOption configures the logging HTTP transport.
type LoggingTransportOption func(*loggingTransport)

type loggingTransport struct {
	transport   http.RoundTripper
	logBody     bool
	maxBodySize int64
}

// NewLoggingTransport logs requests and responses at debug level.
// Bodies are off by default; when on, api keys are masked.
func NewLoggingTransport(transport http.RoundTripper, opts ...LoggingTransportOption) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &loggingTransport{
		transport:   transport,
		maxBodySize: defaultMaxLoggedBody,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func WithTransportLogBody(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logBody = enabled
	}
}

func WithTransportMaxBodySize(size int64) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.maxBodySize = size
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	t.logRequest(ctx, req)

	resp, err := t.transport.RoundTrip(req)

	t.logResponse(ctx, resp, err, time.Since(start))
	return resp, err
}

func (t *loggingTransport) logRequest(ctx context.Context, req *http.Request) {
	logger := util.Log(ctx).WithFields(map[string]any{
		"method": req.Method,
		"url":    req.URL.Redacted(),
	})

	if t.logBody && req.Body != nil {
		var logged string
		logged, req.Body = t.peek(req.Body)
		if logged != "" {
			logger = logger.WithField("body", logged)
		}
	}

	logger.Debug("HTTP request sent")
}

func (t *loggingTransport) logResponse(ctx context.Context, resp *http.Response, err error, duration time.Duration) {
	logger := util.Log(ctx).WithField("duration", duration.String())

	if err != nil {
		logger.WithError(err).Warn("HTTP request failed")
		return
	}

	logger = logger.WithField("status", resp.StatusCode)
	if t.logBody && resp.Body != nil {
		var logged string
		logged, resp.Body = t.peek(resp.Body)
		if logged != "" {
			logger = logger.WithField("body", logged)
		}
	}

	logger.Debug("HTTP response received")
}

// peek reads up to maxBodySize bytes for logging and returns a body that
// still yields the full content.
func (t *loggingTransport) peek(body io.ReadCloser) (string, io.ReadCloser) {
	head, err := io.ReadAll(io.LimitReader(body, t.maxBodySize))
	if err != nil {
		return "", body
	}

	restored := struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), body), body}

	return secretPattern.ReplaceAllString(string(head), "${1}***"), restored
}
