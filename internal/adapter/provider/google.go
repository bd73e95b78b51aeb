package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"websearch/internal/domain"
)

const defaultGoogleURL = "https://www.googleapis.com/customsearch/v1"

// Google CSE caps num at 10 per request.
const googleMaxResults = 10

type googleResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
	} `json:"items"`
}

// Google searches via the Google Custom Search JSON API. Requires both an
// API key and a search engine id (cx).
type Google struct {
	apiKey  string
	cx      string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewGoogle(apiKey, cx string, logger *slog.Logger) *Google {
	return &Google{
		apiKey:  apiKey,
		cx:      cx,
		baseURL: defaultGoogleURL,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (p *Google) Name() string       { return "google" }
func (p *Google) IsConfigured() bool { return p.apiKey != "" && p.cx != "" }

func (p *Google) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if !p.IsConfigured() {
		return nil, &domain.MissingAPIKeyError{Provider: p.Name()}
	}

	ctx, cancel := searchContext(ctx, opts)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}

	num := opts.MaxResults
	if num > googleMaxResults {
		num = googleMaxResults
	}

	q := req.URL.Query()
	q.Set("key", p.apiKey)
	q.Set("cx", p.cx)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))
	q.Set("safe", googleSafe(opts.SafeSearch))
	if restrict := googleDateRestrict(opts.DateRange); restrict != "" {
		q.Set("dateRestrict", restrict)
	}
	if len(opts.IncludeDomains) > 0 {
		sites := make([]string, len(opts.IncludeDomains))
		for i, d := range opts.IncludeDomains {
			sites[i] = "site:" + d
		}
		q.Set("siteSearch", strings.Join(sites, " OR "))
	}
	req.URL.RawQuery = q.Encode()

	body, err := doRequest(p.client, req, p.Name(), opts)
	if err != nil {
		return nil, err
	}

	var googleResp googleResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, &domain.APIError{Provider: p.Name(), Message: "invalid response: " + err.Error()}
	}

	results := make([]domain.SearchResult, 0, len(googleResp.Items))
	for i, item := range googleResp.Items {
		results = append(results, domain.SearchResult{
			Title:    item.Title,
			URL:      item.Link,
			Snippet:  item.Snippet,
			Position: i + 1,
			Source:   item.DisplayLink,
		})
	}

	p.logger.Debug("google search completed", "query", query, "results", len(results))
	return results, nil
}

func (p *Google) ValidateKey(ctx context.Context) (bool, error) {
	return validateProbe(ctx, p)
}

func googleSafe(s domain.SafeSearch) string {
	switch s {
	case domain.SafeSearchOff:
		return "off"
	case domain.SafeSearchStrict:
		return "high"
	default:
		return "medium"
	}
}

func googleDateRestrict(r domain.DateRange) string {
	switch r {
	case domain.DateRangeDay:
		return "d1"
	case domain.DateRangeWeek:
		return "w1"
	case domain.DateRangeMonth:
		return "m1"
	case domain.DateRangeYear:
		return "y1"
	}
	return ""
}
