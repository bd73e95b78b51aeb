package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"websearch/internal/domain"
)

const defaultSerpAPIURL = "https://serpapi.com/search"

type serpapiResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Date     string `json:"date"`
		Source   string `json:"source"`
		Position int    `json:"position"`
	} `json:"organic_results"`
}

// SerpAPI searches Google results via SerpApi.
type SerpAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewSerpAPI(apiKey string, logger *slog.Logger) *SerpAPI {
	return &SerpAPI{
		apiKey:  apiKey,
		baseURL: defaultSerpAPIURL,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (p *SerpAPI) Name() string       { return "serpapi" }
func (p *SerpAPI) IsConfigured() bool { return p.apiKey != "" }

func (p *SerpAPI) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
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
	q.Set("engine", "google")
	q.Set("api_key", p.apiKey)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(opts.MaxResults))
	q.Set("safe", serpapiSafe(opts.SafeSearch))
	if tbs := tbsRange(opts.DateRange); tbs != "" {
		q.Set("tbs", tbs)
	}
	req.URL.RawQuery = q.Encode()

	body, err := doRequest(p.client, req, p.Name(), opts)
	if err != nil {
		return nil, err
	}

	var serpResp serpapiResponse
	if err := json.Unmarshal(body, &serpResp); err != nil {
		return nil, &domain.APIError{Provider: p.Name(), Message: "invalid response: " + err.Error()}
	}
	// SerpApi reports some failures as 200 with an error field.
	if serpResp.Error != "" {
		return nil, &domain.APIError{Provider: p.Name(), Message: serpResp.Error}
	}

	results := make([]domain.SearchResult, 0, len(serpResp.OrganicResults))
	for i, r := range serpResp.OrganicResults {
		if len(results) >= opts.MaxResults {
			break
		}
		position := r.Position
		if position == 0 {
			position = i + 1
		}
		results = append(results, domain.SearchResult{
			Title:         r.Title,
			URL:           r.Link,
			Snippet:       r.Snippet,
			Position:      position,
			PublishedDate: r.Date,
			Source:        r.Source,
		})
	}

	p.logger.Debug("serpapi search completed", "query", query, "results", len(results))
	return results, nil
}

func (p *SerpAPI) ValidateKey(ctx context.Context) (bool, error) {
	return validateProbe(ctx, p)
}

func serpapiSafe(s domain.SafeSearch) string {
	switch s {
	case domain.SafeSearchOff:
		return "off"
	case domain.SafeSearchStrict:
		return "active"
	default:
		return "medium"
	}
}
