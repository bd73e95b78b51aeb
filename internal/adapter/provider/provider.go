// Package provider implements the search backend adapters. Each adapter owns
// its own HTTP client and translates one external API's JSON shape into
// normalized results, mapping HTTP failures onto the shared error types.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"websearch/internal/domain"
)

const (
	maxResponseBody = 512 * 1024 // 512KB
	validateTimeout = 10 * time.Second
)

func newHTTPClient() *http.Client {
	// Per-request deadlines come from the search options; the client-level
	// timeout is a hard upper bound.
	return &http.Client{Timeout: 90 * time.Second}
}

// searchContext applies the per-request timeout from the options.
func searchContext(ctx context.Context, opts domain.SearchOptions) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// doRequest executes a request and returns the capped response body.
// Non-2xx statuses and transport failures are mapped onto the shared error
// taxonomy: 429 becomes a rate limit (with the Retry-After hint when the
// server sent one), 401/403 an invalid key, anything else an API error.
// A context deadline surfaces as a timeout, other transport failures as
// network errors.
func doRequest(client *http.Client, req *http.Request, providerName string, opts domain.SearchOptions) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.TimeoutError{Seconds: int(opts.Timeout / time.Second)}
		}
		return nil, &domain.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	return readClassified(resp, providerName)
}

// readClassified reads the capped response body and maps non-2xx statuses
// onto the shared error types.
func readClassified(resp *http.Response, providerName string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &domain.NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(providerName, resp, body)
	}
	return body, nil
}

func classifyStatus(providerName string, resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &domain.RateLimitError{
			Provider:   providerName,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &domain.InvalidAPIKeyError{Provider: providerName}
	default:
		return &domain.APIError{
			Provider: providerName,
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncateBody(body)),
		}
	}
}

// parseRetryAfter handles the delay-seconds form of the header. The
// HTTP-date form is rare on search APIs and is treated as no hint.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// tbsRange maps a date range to Google's tbs recency syntax, shared by the
// Google-results providers.
func tbsRange(r domain.DateRange) string {
	switch r {
	case domain.DateRangeDay:
		return "qdr:d"
	case domain.DateRangeWeek:
		return "qdr:w"
	case domain.DateRangeMonth:
		return "qdr:m"
	case domain.DateRangeYear:
		return "qdr:y"
	}
	return ""
}

func truncateBody(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// validateProbe implements the shared ValidateKey contract: unconfigured
// providers report false without touching the network, a rejected key
// reports false, anything else propagates.
func validateProbe(ctx context.Context, p domain.SearchProvider) (bool, error) {
	if !p.IsConfigured() {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	opts := domain.SearchOptions{
		MaxResults: 1,
		SafeSearch: domain.SafeSearchModerate,
		Timeout:    validateTimeout,
	}
	if _, err := p.Search(ctx, "test", opts); err != nil {
		var keyErr *domain.InvalidAPIKeyError
		if errors.As(err, &keyErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
