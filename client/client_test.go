package client_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/autotranslate/client"
)

type ClientSuite struct {
	suite.Suite
	server *httptest.Server
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"busy"}`)
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	s.server = httptest.NewServer(mux)
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) TestPostJSONDecodesAnswer() {
	cl := client.NewHTTPClient(client.WithHTTPTraceRequests(true))

	var out map[string]string
	err := client.PostJSON(s.T().Context(), cl, s.server.URL+"/echo", map[string]string{"q": "hola", "api_key": "k"}, &out)
	s.Require().NoError(err)
	s.Equal("hola", out["echo"])
}

func (s *ClientSuite) TestStatusErrors() {
	cl := client.NewHTTPClient()

	err := client.PostJSON(s.T().Context(), cl, s.server.URL+"/busy", map[string]string{}, nil)
	var statusErr *client.StatusError
	s.Require().ErrorAs(err, &statusErr)
	s.Equal(http.StatusServiceUnavailable, statusErr.StatusCode)
	s.True(statusErr.Retryable())
	s.JSONEq(`{"error":"busy"}`, string(statusErr.Body))

	err = client.PostJSON(s.T().Context(), cl, s.server.URL+"/bad", map[string]string{}, nil)
	s.Require().ErrorAs(err, &statusErr)
	s.False(statusErr.Retryable())
}

func TestLoggingTransportKeepsBodyIntact(t *testing.T) {
	var seen string
	inner := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(raw)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok")), Request: r}, nil
	})

	transport := client.NewLoggingTransport(inner, client.WithTransportLogBody(true), client.WithTransportMaxBodySize(4))
	payload := `{"q":"a long body","api_key":"secret"}`
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, "http://example.invalid", strings.NewReader(payload))
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, payload, seen)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
