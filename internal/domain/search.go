package domain

import (
	"context"
	"fmt"
	"time"
)

// SearchResult represents a single ranked hit from a search provider.
// Position is the 1-based rank within the provider's response.
type SearchResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet"`
	Position      int    `json:"position"`
	PublishedDate string `json:"published_date,omitempty"`
	Source        string `json:"source,omitempty"`
}

// SafeSearch controls the provider-side content filter level.
type SafeSearch string

const (
	SafeSearchOff      SafeSearch = "off"
	SafeSearchModerate SafeSearch = "moderate"
	SafeSearchStrict   SafeSearch = "strict"
)

// ParseSafeSearch converts a user-supplied string to a SafeSearch level.
func ParseSafeSearch(s string) (SafeSearch, error) {
	switch SafeSearch(s) {
	case SafeSearchOff, SafeSearchModerate, SafeSearchStrict:
		return SafeSearch(s), nil
	}
	return "", &ConfigError{Message: fmt.Sprintf("invalid safe-search level %q (off, moderate, strict)", s)}
}

// DateRange restricts results to a recency window. Empty means no restriction.
type DateRange string

const (
	DateRangeNone  DateRange = ""
	DateRangeDay   DateRange = "day"
	DateRangeWeek  DateRange = "week"
	DateRangeMonth DateRange = "month"
	DateRangeYear  DateRange = "year"
)

// ParseDateRange converts a user-supplied string to a DateRange.
func ParseDateRange(s string) (DateRange, error) {
	switch DateRange(s) {
	case DateRangeNone, DateRangeDay, DateRangeWeek, DateRangeMonth, DateRangeYear:
		return DateRange(s), nil
	}
	return "", &ConfigError{Message: fmt.Sprintf("invalid date range %q (day, week, month, year)", s)}
}

// SearchOptions carries caller-supplied query parameters. Providers treat it
// as read-only; the same value is passed to every attempt.
type SearchOptions struct {
	MaxResults     int
	SafeSearch     SafeSearch
	DateRange      DateRange
	IncludeDomains []string
	ExcludeDomains []string
	Timeout        time.Duration
}

// DefaultSearchOptions returns the options used when the caller specifies nothing.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MaxResults: 10,
		SafeSearch: SafeSearchModerate,
		Timeout:    30 * time.Second,
	}
}

// SearchProvider abstracts one external search backend.
// Implementations are stateless with respect to search history.
type SearchProvider interface {
	// Name returns the provider identifier (e.g. "brave").
	Name() string
	// IsConfigured reports whether required credentials are present.
	IsConfigured() bool
	// Search performs a web search and returns normalized results.
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
	// ValidateKey performs a minimal live probe. An unconfigured provider
	// returns (false, nil); a rejected key returns (false, nil) as well,
	// while transport problems surface as errors.
	ValidateKey(ctx context.Context) (bool, error)
}

// CloneResults returns a deep copy of a result list. Results carry no
// resource handles, so a slice copy is sufficient.
func CloneResults(results []SearchResult) []SearchResult {
	if results == nil {
		return nil
	}
	out := make([]SearchResult, len(results))
	copy(out, results)
	return out
}
