package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

// Retry policy for a single provider. Delays double per attempt unless the
// error carries an explicit retry-after hint.
const (
	maxSearchAttempts = 3
	baseRetryDelay    = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

// Orchestrator owns the registered search providers and decides which one
// answers a query: candidates are tried sequentially in fallback order, each
// with a bounded retry loop, and the first success wins.
type Orchestrator struct {
	providers     []domain.SearchProvider // registration order
	fallbackOrder []string
	logger        *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error // swapped in tests
}

// NewOrchestrator creates an orchestrator with the given static fallback
// order. Providers are added with Register.
func NewOrchestrator(fallbackOrder []string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		fallbackOrder: fallbackOrder,
		logger:        logger,
		sleep:         sleepCtx,
	}
}

// Register adds a provider. Registration order is preserved but only matters
// for providers absent from the fallback order.
func (o *Orchestrator) Register(p domain.SearchProvider) {
	o.providers = append(o.providers, p)
}

// Provider returns a registered provider by name.
func (o *Orchestrator) Provider(name string) (domain.SearchProvider, bool) {
	for _, p := range o.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Providers returns all registered providers in registration order.
func (o *Orchestrator) Providers() []domain.SearchProvider {
	return o.providers
}

// ProvidersInOrder computes the effective candidate list: configured
// providers in fallback order first, then any remaining configured providers
// in registration order. Unconfigured providers are excluded; no provider
// appears twice.
func (o *Orchestrator) ProvidersInOrder() []domain.SearchProvider {
	seen := make(map[string]bool, len(o.providers))
	ordered := make([]domain.SearchProvider, 0, len(o.providers))

	for _, name := range o.fallbackOrder {
		p, ok := o.Provider(name)
		if ok && !seen[name] && p.IsConfigured() {
			ordered = append(ordered, p)
			seen[name] = true
		}
	}
	for _, p := range o.providers {
		if !seen[p.Name()] && p.IsConfigured() {
			ordered = append(ordered, p)
			seen[p.Name()] = true
		}
	}
	return ordered
}

// SearchWithFallback tries providers in order until one succeeds, returning
// the results and the name of the provider that produced them. A non-empty
// preferred name promotes that provider to the front for this call only.
func (o *Orchestrator) SearchWithFallback(ctx context.Context, query string, opts domain.SearchOptions, preferred string) ([]domain.SearchResult, string, error) {
	searchID := ulid.Make().String()

	ctx, span := tracer.StartSpan(ctx, "search.fallback",
		trace.WithAttributes(
			tracer.StringAttr("search.id", searchID),
			tracer.StringAttr("search.preferred", preferred),
		))
	defer span.End()

	candidates := promote(o.ProvidersInOrder(), preferred)
	if len(candidates) == 0 {
		tracer.RecordError(span, domain.ErrNoProviders)
		return nil, "", domain.ErrNoProviders
	}

	var lastErr error
	for _, p := range candidates {
		results, err := o.searchWithRetry(ctx, p, query, opts, searchID)
		if err == nil {
			o.logger.Debug("search succeeded",
				"search_id", searchID,
				"provider", p.Name(),
				"results", len(results),
			)
			span.SetAttributes(tracer.StringAttr("search.provider", p.Name()))
			tracer.SetOK(span)
			return results, p.Name(), nil
		}

		lastErr = err
		if !domain.IsContinuable(err) {
			o.logger.Error("search aborted",
				"search_id", searchID,
				"provider", p.Name(),
				"error", err,
			)
			tracer.RecordError(span, err)
			return nil, "", err
		}
		o.logger.Warn("provider failed, trying next",
			"search_id", searchID,
			"provider", p.Name(),
			"error", err,
		)
	}

	err := &domain.AllFailedError{LastMessage: lastErr.Error()}
	tracer.RecordError(span, err)
	return nil, "", err
}

// searchWithRetry runs one provider's bounded retry loop. Only transport
// failures and rate limits are retried; the delay honors an explicit
// retry-after hint when the error carries one.
func (o *Orchestrator) searchWithRetry(ctx context.Context, p domain.SearchProvider, query string, opts domain.SearchOptions, searchID string) ([]domain.SearchResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxSearchAttempts; attempt++ {
		results, err := p.Search(ctx, query, opts)
		if err == nil {
			return results, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) || attempt == maxSearchAttempts-1 {
			break
		}

		delay := domain.RetryAfterHint(err)
		if delay <= 0 {
			delay = retryBackoff(attempt)
		}
		o.logger.Debug("retrying provider",
			"search_id", searchID,
			"provider", p.Name(),
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// promote moves the named provider to the front of the candidate list if it
// is present. Unknown names are ignored.
func promote(candidates []domain.SearchProvider, preferred string) []domain.SearchProvider {
	if preferred == "" {
		return candidates
	}
	for i, p := range candidates {
		if p.Name() == preferred {
			promoted := make([]domain.SearchProvider, 0, len(candidates))
			promoted = append(promoted, p)
			promoted = append(promoted, candidates[:i]...)
			promoted = append(promoted, candidates[i+1:]...)
			return promoted
		}
	}
	return candidates
}

// retryBackoff computes the exponential delay for the given attempt:
// attempt 0 waits the base delay, each further attempt doubles it.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<attempt)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
