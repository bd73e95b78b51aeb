package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"websearch/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// BreakerProvider wraps a provider with a circuit breaker. When the provider
// fails repeatedly, the circuit opens and subsequent calls fail fast without
// a network round trip. An open circuit surfaces as a network error, which
// the fallback loop treats as continuable, so a tripped provider is skipped
// rather than aborting the whole search.
type BreakerProvider struct {
	inner   domain.SearchProvider
	breaker *gobreaker.CircuitBreaker[[]domain.SearchResult]
}

// NewBreakerProvider wraps inner with a circuit breaker. Zero-valued config
// fields fall back to defaults.
func NewBreakerProvider(inner domain.SearchProvider, cfg BreakerConfig, logger *slog.Logger) *BreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[[]domain.SearchResult](gobreaker.Settings{
		Name:        "search:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// A missing key is a local short-circuit, not a provider
			// failure; it must not trip the breaker.
			var missingErr *domain.MissingAPIKeyError
			return err == nil || errors.As(err, &missingErr)
		},
	})

	return &BreakerProvider{inner: inner, breaker: cb}
}

func (p *BreakerProvider) Name() string       { return p.inner.Name() }
func (p *BreakerProvider) IsConfigured() bool { return p.inner.IsConfigured() }

func (p *BreakerProvider) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	results, err := p.breaker.Execute(func() ([]domain.SearchResult, error) {
		return p.inner.Search(ctx, query, opts)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &domain.NetworkError{Err: err}
		}
		return nil, err
	}
	return results, nil
}

func (p *BreakerProvider) ValidateKey(ctx context.Context) (bool, error) {
	return p.inner.ValidateKey(ctx)
}
