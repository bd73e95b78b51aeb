package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoProviders is returned when the fallback loop has no configured
// candidate to try.
var ErrNoProviders = fmt.Errorf("no search providers are configured")

// NetworkError wraps a transport-level failure (DNS, dial, TLS, body read).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-2xx response that is neither an auth failure nor a
// rate limit.
type APIError struct {
	Provider string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

// RateLimitError is an HTTP 429. RetryAfter is zero when the server gave
// no hint.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// InvalidAPIKeyError is an HTTP 401/403 — the credential was rejected.
type InvalidAPIKeyError struct {
	Provider string
}

func (e *InvalidAPIKeyError) Error() string {
	return fmt.Sprintf("invalid API key for %s", e.Provider)
}

// MissingAPIKeyError means the provider was asked to search without a
// credential. Adapters short-circuit with this before any network I/O.
type MissingAPIKeyError struct {
	Provider string
}

func (e *MissingAPIKeyError) Error() string {
	return fmt.Sprintf("missing API key for %s", e.Provider)
}

// TimeoutError is a provider-reported request timeout.
type TimeoutError struct {
	Seconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %d seconds", e.Seconds)
}

// ConfigError is a structural configuration problem, not specific to one
// provider. It always aborts the fallback loop.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Message }

// AllFailedError means every candidate provider was exhausted. LastMessage
// preserves the final provider's failure.
type AllFailedError struct {
	LastMessage string
}

func (e *AllFailedError) Error() string {
	return "all search providers failed: " + e.LastMessage
}

// IsRetryable reports whether an error is worth another attempt against the
// same provider. Only transport failures and rate limits qualify; credential
// and API errors will not improve on retry.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	var rateErr *RateLimitError
	return errors.As(err, &netErr) || errors.As(err, &rateErr)
}

// IsContinuable reports whether the fallback loop may move on to the next
// provider after this error. Rate limits, API errors and transport failures
// are provider-specific; anything else aborts the whole operation.
func IsContinuable(err error) bool {
	var apiErr *APIError
	var rateErr *RateLimitError
	var netErr *NetworkError
	return errors.As(err, &apiErr) || errors.As(err, &rateErr) || errors.As(err, &netErr)
}

// RetryAfterHint extracts an explicit retry-after delay if the error carries
// one. Returns zero when no hint is present.
func RetryAfterHint(err error) time.Duration {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.RetryAfter
	}
	return 0
}
