package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpts() domain.SearchOptions {
	opts := domain.DefaultSearchOptions()
	opts.Timeout = 5 * time.Second
	return opts
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "429 with hint",
			status:     http.StatusTooManyRequests,
			retryAfter: "12",
			check: func(t *testing.T, err error) {
				var rateErr *domain.RateLimitError
				require.ErrorAs(t, err, &rateErr)
				assert.Equal(t, 12*time.Second, rateErr.RetryAfter)
				assert.Equal(t, "brave", rateErr.Provider)
			},
		},
		{
			name:   "429 without hint",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var rateErr *domain.RateLimitError
				require.ErrorAs(t, err, &rateErr)
				assert.Zero(t, rateErr.RetryAfter)
			},
		},
		{
			name:   "401",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var keyErr *domain.InvalidAPIKeyError
				require.ErrorAs(t, err, &keyErr)
			},
		},
		{
			name:   "403",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var keyErr *domain.InvalidAPIKeyError
				require.ErrorAs(t, err, &keyErr)
			},
		},
		{
			name:   "500",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var apiErr *domain.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Contains(t, apiErr.Message, "HTTP 500")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewBrave("key", newTestLogger())
			p.baseURL = srv.URL
			_, err := p.Search(context.Background(), "query", testOpts())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	p := NewTavily("key", newTestLogger())
	p.baseURL = srv.URL
	_, err := p.Search(context.Background(), "query", testOpts())
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestMissingKeyShortCircuits(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	for _, p := range []domain.SearchProvider{
		NewBrave("", newTestLogger()),
		NewGoogle("key", "", newTestLogger()), // cx missing counts too
		NewTavily("", newTestLogger()),
		NewSerper("", newTestLogger()),
		NewFirecrawl("", newTestLogger()),
		NewSerpAPI("", newTestLogger()),
		NewBing("", newTestLogger()),
	} {
		assert.False(t, p.IsConfigured(), p.Name())
		_, err := p.Search(context.Background(), "query", testOpts())
		var missingErr *domain.MissingAPIKeyError
		require.ErrorAs(t, err, &missingErr, p.Name())
	}
	assert.False(t, called, "no network call should be made without a key")
}

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "rust async", r.URL.Query().Get("q"))
		assert.Equal(t, "moderate", r.URL.Query().Get("safesearch"))
		assert.Equal(t, "pw", r.URL.Query().Get("freshness"))
		w.Write([]byte(`{"web":{"results":[
			{"title":"Async Book","url":"https://rust-lang.github.io/async-book/","description":"Asynchronous programming in Rust","page_age":"2024-01-15","profile":{"name":"rust-lang.github.io"}},
			{"title":"Tokio","url":"https://tokio.rs","description":"A runtime"}
		]}}`))
	}))
	defer srv.Close()

	p := NewBrave("key", newTestLogger())
	p.baseURL = srv.URL
	opts := testOpts()
	opts.DateRange = domain.DateRangeWeek

	results, err := p.Search(context.Background(), "rust async", opts)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Async Book", results[0].Title)
	assert.Equal(t, 1, results[0].Position)
	assert.Equal(t, "2024-01-15", results[0].PublishedDate)
	assert.Equal(t, "rust-lang.github.io", results[0].Source)
	assert.Equal(t, 2, results[1].Position)
}

func TestGoogleSearchParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("key"))
		assert.Equal(t, "engine-id", q.Get("cx"))
		assert.Equal(t, "10", q.Get("num"), "num is capped at 10")
		assert.Equal(t, "high", q.Get("safe"))
		assert.Equal(t, "d1", q.Get("dateRestrict"))
		assert.Equal(t, "site:golang.org OR site:go.dev", q.Get("siteSearch"))
		w.Write([]byte(`{"items":[{"title":"Go","link":"https://go.dev","snippet":"The Go programming language","displayLink":"go.dev"}]}`))
	}))
	defer srv.Close()

	p := NewGoogle("key", "engine-id", newTestLogger())
	p.baseURL = srv.URL
	opts := testOpts()
	opts.MaxResults = 25
	opts.SafeSearch = domain.SafeSearchStrict
	opts.DateRange = domain.DateRangeDay
	opts.IncludeDomains = []string{"golang.org", "go.dev"}

	results, err := p.Search(context.Background(), "goroutines", opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "go.dev", results[0].Source)
}

func TestDuckDuckGoTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("no_html"))
		long := strings.Repeat("x", 120)
		w.Write([]byte(`{
			"Heading":"Go",
			"AbstractText":"Go is a programming language.",
			"AbstractURL":"https://en.wikipedia.org/wiki/Go",
			"AbstractSource":"Wikipedia",
			"RelatedTopics":[
				{"Text":"` + long + `","FirstURL":"https://example.com/long"},
				{"Topics":[{"Text":"Nested topic","FirstURL":"https://example.com/nested"}]},
				{"Text":"No URL topic"}
			]
		}`))
	}))
	defer srv.Close()

	p := NewDuckDuckGo(true, newTestLogger())
	p.baseURL = srv.URL

	results, err := p.Search(context.Background(), "go", testOpts())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Go", results[0].Title)
	assert.Equal(t, "Wikipedia", results[0].Source)
	assert.Equal(t, strings.Repeat("x", 100)+"...", results[1].Title)
	assert.Equal(t, "Nested topic", results[2].Title)
	assert.Equal(t, 3, results[2].Position)
}

func TestDuckDuckGoDisabled(t *testing.T) {
	p := NewDuckDuckGo(false, newTestLogger())
	assert.False(t, p.IsConfigured())
	ok, err := p.ValidateKey(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTavilyRequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"api_key":"key"`)
		assert.Contains(t, string(body), `"search_depth":"basic"`)
		assert.Contains(t, string(body), `"include_domains":["docs.rs"]`)
		w.Write([]byte(`{"results":[{"title":"Docs","url":"https://docs.rs","content":"API docs"}]}`))
	}))
	defer srv.Close()

	p := NewTavily("key", newTestLogger())
	p.baseURL = srv.URL
	opts := testOpts()
	opts.IncludeDomains = []string{"docs.rs"}

	results, err := p.Search(context.Background(), "serde", opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "API docs", results[0].Snippet)
}

func TestSerperSourceAndPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		w.Write([]byte(`{"organic":[
			{"title":"A","link":"https://a.com","snippet":"s","displayedLink":"a.com › docs › intro","position":1},
			{"title":"B","link":"https://b.com","snippet":"s","date":"Jan 2, 2024"}
		]}`))
	}))
	defer srv.Close()

	p := NewSerper("key", newTestLogger())
	p.baseURL = srv.URL

	results, err := p.Search(context.Background(), "query", testOpts())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.com", results[0].Source)
	assert.Equal(t, 2, results[1].Position, "missing position falls back to list index")
	assert.Equal(t, "Jan 2, 2024", results[1].PublishedDate)
}

func TestFirecrawlTimeout408(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestTimeout)
	}))
	defer srv.Close()

	p := NewFirecrawl("key", newTestLogger())
	p.baseURL = srv.URL
	_, err := p.Search(context.Background(), "query", testOpts())
	var timeoutErr *domain.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestFirecrawlUnsuccessfulBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"query":"query site:a.com -site:b.com"`)
		w.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	p := NewFirecrawl("key", newTestLogger())
	p.baseURL = srv.URL
	opts := testOpts()
	opts.IncludeDomains = []string{"a.com"}
	opts.ExcludeDomains = []string{"b.com"}

	_, err := p.Search(context.Background(), "query", opts)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "quota exceeded", apiErr.Message)
}

func TestSerpAPIErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "google", r.URL.Query().Get("engine"))
		w.Write([]byte(`{"error":"Your searches for the month are exhausted."}`))
	}))
	defer srv.Close()

	p := NewSerpAPI("key", newTestLogger())
	p.baseURL = srv.URL
	_, err := p.Search(context.Background(), "query", testOpts())
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "exhausted")
}

func TestBingSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "Strict", r.URL.Query().Get("safeSearch"))
		assert.Equal(t, "Raw", r.URL.Query().Get("textFormat"))
		w.Write([]byte(`{"webPages":{"value":[
			{"name":"Example","url":"https://example.com/page","snippet":"s","dateLastCrawled":"2024-03-01T00:00:00Z","displayUrl":"example.com/page"}
		]}}`))
	}))
	defer srv.Close()

	p := NewBing("key", newTestLogger())
	p.baseURL = srv.URL
	opts := testOpts()
	opts.SafeSearch = domain.SafeSearchStrict

	results, err := p.Search(context.Background(), "query", opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "example.com", results[0].Source)
	assert.Equal(t, "2024-03-01T00:00:00Z", results[0].PublishedDate)
}

func TestValidateProbe(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		ok, err := NewBrave("", newTestLogger()).ValidateKey(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rejected key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()
		p := NewBrave("bad", newTestLogger())
		p.baseURL = srv.URL
		ok, err := p.ValidateKey(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("valid key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"web":{"results":[]}}`))
		}))
		defer srv.Close()
		p := NewBrave("good", newTestLogger())
		p.baseURL = srv.URL
		ok, err := p.ValidateKey(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRateLimitedProviderPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web":{"results":[{"title":"T","url":"https://t"}]}}`))
	}))
	defer srv.Close()

	inner := NewBrave("key", newTestLogger())
	inner.baseURL = srv.URL

	p := NewRateLimitedProvider(inner, 600)
	assert.Equal(t, "brave", p.Name())
	assert.True(t, p.IsConfigured())
	results, err := p.Search(context.Background(), "query", testOpts())
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Zero budget means no wrapper at all.
	assert.Same(t, domain.SearchProvider(inner), NewRateLimitedProvider(inner, 0))
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	inner := NewBrave("key", newTestLogger())
	inner.baseURL = srv.URL
	p := NewBreakerProvider(inner, BreakerConfig{MaxFailures: 2}, newTestLogger())

	for i := 0; i < 2; i++ {
		_, err := p.Search(context.Background(), "query", testOpts())
		var apiErr *domain.APIError
		require.ErrorAs(t, err, &apiErr)
	}

	// Third call: circuit is open, fails fast as a continuable network error.
	_, err := p.Search(context.Background(), "query", testOpts())
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, errors.Is(netErr.Err, gobreaker.ErrOpenState))
}
