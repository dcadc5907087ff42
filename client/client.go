// Package client builds the instrumented HTTP client translation providers use.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHTTPTimeout        = 30 * time.Second
	defaultMaxResponseBodyLen = 4 << 20
)

var ErrResponseTooLarge = errors.New("response body exceeds configured limit")

// StatusError is returned for responses outside the 2xx range. Body holds
// at most the configured limit of the response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// HTTPOption configures the client.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	timeout       time.Duration
	transport     http.RoundTripper
	traceRequests bool
	traceBody     bool
}

func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.timeout = timeout
	}
}

// WithHTTPTransport replaces the instrumented default transport.
func WithHTTPTransport(transport http.RoundTripper) HTTPOption {
	return func(c *httpConfig) {
		c.transport = transport
	}
}

// WithHTTPTraceRequests logs every request and response. Bodies are only
// logged when withBody is set.
func WithHTTPTraceRequests(withBody bool) HTTPOption {
	return func(c *httpConfig) {
		c.traceRequests = true
		c.traceBody = withBody
	}
}

// NewHTTPClient creates a client whose transport defaults to
// otelhttp.NewTransport(http.DefaultTransport).
func NewHTTPClient(opts ...HTTPOption) *http.Client {
	cfg := &httpConfig{
		timeout:   defaultHTTPTimeout,
		transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.traceRequests {
		cfg.transport = NewLoggingTransport(cfg.transport, WithTransportLogBody(cfg.traceBody))
	}

	return &http.Client{
		Transport: cfg.transport,
		Timeout:   cfg.timeout,
	}
}

// PostJSON sends payload as JSON and decodes a 2xx JSON answer into out.
// Any other status is a *StatusError.
func PostJSON(ctx context.Context, cl *http.Client, endpointURL string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return Do(ctx, cl, req, out)
}

// Do executes req and decodes a 2xx JSON answer into out, when out is not nil.
func Do(ctx context.Context, cl *http.Client, req *http.Request, out any) error {
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer util.CloseAndLogOnError(ctx, resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBodyLen+1))
	if err != nil {
		return err
	}
	if len(data) > defaultMaxResponseBodyLen {
		return ErrResponseTooLarge
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{StatusCode: resp.StatusCode, Body: data}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}
