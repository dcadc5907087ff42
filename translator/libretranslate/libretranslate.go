// Package libretranslate is a translator module backed by a LibreTranslate server.
package libretranslate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pitabwire/autotranslate/client"
	"github.com/pitabwire/autotranslate/translator"
)

const Name = "libretranslate"

// Languages served by a stock LibreTranslate install.
//
//nolint:gochecknoglobals // declared capabilities
var Languages = []string{
	"ar", "az", "cs", "da", "de", "el", "en", "eo", "es", "fa", "fi", "fr", "ga", "he", "hi", "hu",
	"id", "it", "ja", "ko", "nl", "pl", "pt", "ru", "sk", "sv", "sw", "tr", "uk", "zh",
}

type request struct {
	Query  string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type response struct {
	TranslatedText string `json:"translatedText"`
}

type errorBody struct {
	Error string `json:"error"`
}

type provider struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// Module declares the provider. Requests go to endpoint + "/translate".
func Module(endpoint string, apiKey string, opts ...client.HTTPOption) translator.Module {
	return translator.Module{
		Name: Name,
		Capabilities: translator.Capabilities{
			SupportedLanguages: Languages,
			SupportsAutodetect: true,
		},
		Factory: func(_ context.Context) (translator.Provider, error) {
			return New(endpoint, apiKey, opts...), nil
		},
	}
}

func New(endpoint string, apiKey string, opts ...client.HTTPOption) translator.Provider {
	return &provider{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     client.NewHTTPClient(opts...),
	}
}

func (p *provider) Translate(ctx context.Context, text string, from string, to string) (string, error) {
	var out response
	err := client.PostJSON(ctx, p.http, p.endpoint+"/translate", request{
		Query:  text,
		Source: from,
		Target: to,
		Format: "text",
		APIKey: p.apiKey,
	}, &out)
	if err != nil {
		var statusErr *client.StatusError
		if errors.As(err, &statusErr) {
			var body errorBody
			if json.Unmarshal(statusErr.Body, &body) == nil && body.Error != "" {
				return "", &serviceError{message: body.Error, status: statusErr}
			}
		}
		return "", err
	}
	return out.TranslatedText, nil
}

type serviceError struct {
	message string
	status  *client.StatusError
}

func (e *serviceError) Error() string {
	return e.message
}

func (e *serviceError) Unwrap() error {
	return e.status
}

func (e *serviceError) Retryable() bool {
	return e.status.Retryable()
}
