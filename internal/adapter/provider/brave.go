package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"websearch/internal/domain"
)

const defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			PageAge     string `json:"page_age"`
			Profile     struct {
				Name string `json:"name"`
			} `json:"profile"`
		} `json:"results"`
	} `json:"web"`
}

// Brave searches via the Brave Search API.
type Brave struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewBrave(apiKey string, logger *slog.Logger) *Brave {
	return &Brave{
		apiKey:  apiKey,
		baseURL: defaultBraveURL,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (p *Brave) Name() string       { return "brave" }
func (p *Brave) IsConfigured() bool { return p.apiKey != "" }

func (p *Brave) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
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
	q.Set("safesearch", string(opts.SafeSearch))
	if fresh := braveFreshness(opts.DateRange); fresh != "" {
		q.Set("freshness", fresh)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	body, err := doRequest(p.client, req, p.Name(), opts)
	if err != nil {
		return nil, err
	}

	var braveResp braveResponse
	if err := json.Unmarshal(body, &braveResp); err != nil {
		return nil, &domain.APIError{Provider: p.Name(), Message: "invalid response: " + err.Error()}
	}

	results := make([]domain.SearchResult, 0, len(braveResp.Web.Results))
	for i, r := range braveResp.Web.Results {
		if len(results) >= opts.MaxResults {
			break
		}
		results = append(results, domain.SearchResult{
			Title:         r.Title,
			URL:           r.URL,
			Snippet:       r.Description,
			Position:      i + 1,
			PublishedDate: r.PageAge,
			Source:        r.Profile.Name,
		})
	}

	p.logger.Debug("brave search completed", "query", query, "results", len(results))
	return results, nil
}

func (p *Brave) ValidateKey(ctx context.Context) (bool, error) {
	return validateProbe(ctx, p)
}

func braveFreshness(r domain.DateRange) string {
	switch r {
	case domain.DateRangeDay:
		return "pd"
	case domain.DateRangeWeek:
		return "pw"
	case domain.DateRangeMonth:
		return "pm"
	case domain.DateRangeYear:
		return "py"
	}
	return ""
}
