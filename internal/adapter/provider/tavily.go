package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"websearch/internal/domain"
)

const defaultTavilyURL = "https://api.tavily.com/search"

type tavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
	SearchDepth    string   `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Tavily searches via the Tavily Search API.
type Tavily struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewTavily(apiKey string, logger *slog.Logger) *Tavily {
	return &Tavily{
		apiKey:  apiKey,
		baseURL: defaultTavilyURL,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (p *Tavily) Name() string       { return "tavily" }
func (p *Tavily) IsConfigured() bool { return p.apiKey != "" }

func (p *Tavily) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if !p.IsConfigured() {
		return nil, &domain.MissingAPIKeyError{Provider: p.Name()}
	}

	ctx, cancel := searchContext(ctx, opts)
	defer cancel()

	payload, err := json.Marshal(tavilyRequest{
		APIKey:         p.apiKey,
		Query:          query,
		MaxResults:     opts.MaxResults,
		IncludeDomains: opts.IncludeDomains,
		ExcludeDomains: opts.ExcludeDomains,
		SearchDepth:    "basic",
	})
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := doRequest(p.client, req, p.Name(), opts)
	if err != nil {
		return nil, err
	}

	var tavilyResp tavilyResponse
	if err := json.Unmarshal(body, &tavilyResp); err != nil {
		return nil, &domain.APIError{Provider: p.Name(), Message: "invalid response: " + err.Error()}
	}

	results := make([]domain.SearchResult, 0, len(tavilyResp.Results))
	for i, r := range tavilyResp.Results {
		if len(results) >= opts.MaxResults {
			break
		}
		results = append(results, domain.SearchResult{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Content,
			Position: i + 1,
		})
	}

	p.logger.Debug("tavily search completed", "query", query, "results", len(results))
	return results, nil
}

func (p *Tavily) ValidateKey(ctx context.Context) (bool, error) {
	return validateProbe(ctx, p)
}
