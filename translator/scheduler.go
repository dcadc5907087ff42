package translator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/localization"
	"github.com/pitabwire/autotranslate/settings"
)

const (
	retryInitialInterval = 100 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// Config is the part of the settings tree a scheduler is built from.
type Config struct {
	Module    string
	Scheduler settings.Scheduler
	Cache     settings.Cache
}

func ConfigFrom(tree settings.Tree) Config {
	return Config{
		Module:    tree.TranslatorModule,
		Scheduler: tree.Scheduler,
		Cache:     tree.Cache,
	}
}

// Scheduler runs translations through the selected provider with retries
// and an optional result cache.
type Scheduler interface {
	Module() string
	Translate(ctx context.Context, text string, from string, to string) (string, error)
	TranslateBatch(ctx context.Context, texts []string, from string, to string) ([]string, error)
}

type cacheKey struct {
	module string
	from   string
	to     string
	text   string
}

type scheduler struct {
	module   string
	provider Provider
	retries  int
	cache    cache.Cache[cacheKey, string]
	limiter  Limiter
}

func newScheduler(cfg Config, provider Provider, translations cache.RawCache) *scheduler {
	s := &scheduler{
		module:   cfg.Module,
		provider: provider,
		retries:  max(0, cfg.Scheduler.TranslateRetryAttemptLimit),
	}

	if cfg.Scheduler.UseCache && translations != nil {
		ignoreCase := cfg.Cache.IgnoreCase
		s.cache = cache.NewView[cacheKey, string](translations, func(k cacheKey) string {
			text := k.text
			if ignoreCase {
				text = strings.ToLower(text)
			}
			return k.module + "|" + k.from + "|" + k.to + "|" + text
		})
	}
	return s
}

func (s *scheduler) Module() string {
	return s.module
}

func (s *scheduler) Translate(ctx context.Context, text string, from string, to string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	from = normalize(from)
	to = normalize(to)
	key := cacheKey{module: s.module, from: from, to: to, text: text}

	if s.cache != nil {
		cached, found, err := s.cache.Get(ctx, key)
		if err != nil {
			util.Log(ctx).WithError(err).Debug("translation cache lookup failed")
		} else if found {
			return cached, nil
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	translated, err := backoff.Retry(ctx, func() (string, error) {
		if s.limiter != nil {
			if waitErr := s.limiter.Wait(ctx, s.module); waitErr != nil {
				return "", backoff.Permanent(waitErr)
			}
		}
		out, callErr := s.provider.Translate(ctx, text, from, to)
		if callErr == nil {
			return out, nil
		}
		if ctx.Err() != nil || !retryable(callErr) {
			return "", backoff.Permanent(callErr)
		}
		return "", callErr
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.retries+1)))
	if err != nil {
		return "", &ProviderError{Module: s.module, Err: err}
	}

	if s.cache != nil {
		if setErr := s.cache.Set(ctx, key, translated, 0); setErr != nil {
			util.Log(ctx).WithError(setErr).Debug("could not cache translation")
		}
	}
	return translated, nil
}

func (s *scheduler) TranslateBatch(ctx context.Context, texts []string, from string, to string) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		translated, err := s.Translate(ctx, text, from, to)
		if err != nil {
			return nil, err
		}
		out[i] = translated
	}
	return out, nil
}

func normalize(lang string) string {
	if normalized := localization.Normalize(lang); normalized != "" {
		return normalized
	}
	return lang
}

func retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
