package provider

import (
	"context"

	"golang.org/x/time/rate"

	"websearch/internal/domain"
)

// RateLimitedProvider wraps a provider with a client-side request budget so
// that aggressive retry/fallback loops cannot burn through a metered API
// quota. Name and configuration checks pass through, so orchestrator
// ordering is unaffected.
type RateLimitedProvider struct {
	inner   domain.SearchProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider caps inner at requestsPerMinute. A non-positive
// budget returns inner unchanged.
func NewRateLimitedProvider(inner domain.SearchProvider, requestsPerMinute int) domain.SearchProvider {
	if requestsPerMinute <= 0 {
		return inner
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute)/60.0, 1),
	}
}

func (p *RateLimitedProvider) Name() string       { return p.inner.Name() }
func (p *RateLimitedProvider) IsConfigured() bool { return p.inner.IsConfigured() }

func (p *RateLimitedProvider) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &domain.NetworkError{Err: err}
	}
	return p.inner.Search(ctx, query, opts)
}

func (p *RateLimitedProvider) ValidateKey(ctx context.Context) (bool, error) {
	return p.inner.ValidateKey(ctx)
}
