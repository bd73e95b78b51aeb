package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"websearch/internal/domain"
)

const defaultBingURL = "https://api.bing.microsoft.com/v7.0/search"

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name            string `json:"name"`
			URL             string `json:"url"`
			Snippet         string `json:"snippet"`
			DateLastCrawled string `json:"dateLastCrawled"`
			DisplayURL      string `json:"displayUrl"`
		} `json:"value"`
	} `json:"webPages"`
}

// Bing searches via the Bing Web Search API.
type Bing struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewBing(apiKey string, logger *slog.Logger) *Bing {
	return &Bing{
		apiKey:  apiKey,
		baseURL: defaultBingURL,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (p *Bing) Name() string       { return "bing" }
func (p *Bing) IsConfigured() bool { return p.apiKey != "" }

func (p *Bing) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if !p.IsConfigured() {
		return nil, &domain.MissingAPIKeyError{Provider: p.Name()}
	}

	ctx, cancel := searchContext(ctx, opts)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}

	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(opts.MaxResults))
	q.Set("safeSearch", bingSafe(opts.SafeSearch))
	q.Set("textFormat", "Raw")
	if fresh := bingFreshness(opts.DateRange); fresh != "" {
		q.Set("freshness", fresh)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	body, err := doRequest(p.client, req, p.Name(), opts)
	if err != nil {
		return nil, err
	}

	var bingResp bingResponse
	if err := json.Unmarshal(body, &bingResp); err != nil {
		return nil, &domain.APIError{Provider: p.Name(), Message: "invalid response: " + err.Error()}
	}

	results := make([]domain.SearchResult, 0, len(bingResp.WebPages.Value))
	for i, r := range bingResp.WebPages.Value {
		if len(results) >= opts.MaxResults {
			break
		}
		results = append(results, domain.SearchResult{
			Title:         r.Name,
			URL:           r.URL,
			Snippet:       r.Snippet,
			Position:      i + 1,
			PublishedDate: r.DateLastCrawled,
			Source:        bingSource(r.DisplayURL),
		})
	}

	p.logger.Debug("bing search completed", "query", query, "results", len(results))
	return results, nil
}

func (p *Bing) ValidateKey(ctx context.Context) (bool, error) {
	return validateProbe(ctx, p)
}

func bingSafe(s domain.SafeSearch) string {
	switch s {
	case domain.SafeSearchOff:
		return "Off"
	case domain.SafeSearchStrict:
		return "Strict"
	default:
		return "Moderate"
	}
}

func bingFreshness(r domain.DateRange) string {
	switch r {
	case domain.DateRangeDay:
		return "Day"
	case domain.DateRangeWeek:
		return "Week"
	case domain.DateRangeMonth:
		return "Month"
	case domain.DateRangeYear:
		return "Year"
	}
	return ""
}

// bingSource takes the hostname from a display URL, which may or may not
// carry a scheme.
func bingSource(display string) string {
	if display == "" {
		return ""
	}
	if u, err := url.Parse(display); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.SplitN(display, "/", 2)[0]
}
