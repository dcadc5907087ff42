package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pitabwire/autotranslate/messaging"
)

// AutoDetect asks the provider to detect the source language.
const AutoDetect = "auto"

var (
	ErrProvider       = errors.New("translation provider failed")
	ErrUnknownModule  = errors.New("unknown translator module")
	ErrNoSchedulerYet = errors.New("translation scheduler could not be built")
)

// ProviderError wraps a failure reported by a provider.
type ProviderError struct {
	Module string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("translator %s: %v", e.Module, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

func (e *ProviderError) Kind() string {
	return messaging.KindProvider
}

// Capabilities are declared by a module without contacting its service.
type Capabilities struct {
	SupportedLanguages []string `json:"supportedLanguages"`
	SupportsAutodetect bool     `json:"isSupportAutodetect"`
}

// Supports reports whether lang can be used as a source or target.
func (c Capabilities) Supports(lang string) bool {
	if lang == AutoDetect {
		return c.SupportsAutodetect
	}
	for _, supported := range c.SupportedLanguages {
		if strings.EqualFold(supported, lang) {
			return true
		}
	}
	return false
}

// Provider translates text through one external service.
type Provider interface {
	Translate(ctx context.Context, text string, from string, to string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, text string, from string, to string) (string, error)

func (f ProviderFunc) Translate(ctx context.Context, text string, from string, to string) (string, error) {
	return f(ctx, text, from, to)
}

// Factory creates a provider instance.
type Factory func(ctx context.Context) (Provider, error)

// Module is a registered provider with its declared capabilities.
type Module struct {
	Name         string
	Capabilities Capabilities
	Factory      Factory
}
