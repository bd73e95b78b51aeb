package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"websearch/internal/domain"
)

const defaultFirecrawlURL = "https://api.firecrawl.dev/v2/search"

// Firecrawl caps the request timeout at 60s.
const firecrawlMaxTimeout = 60 * time.Second

type firecrawlRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Sources   []string `json:"sources"`
	TBS       string   `json:"tbs,omitempty"`
	Country   string   `json:"country"`
	TimeoutMS int64    `json:"timeout"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Web []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"web"`
	} `json:"data"`
}

// Firecrawl searches via the Firecrawl search API. Domain filters are
// expressed as site:/-site: modifiers on the query itself since the API has
// no dedicated fields for them.
type Firecrawl struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewFirecrawl(apiKey string, logger *slog.Logger) *Firecrawl {
	return &Firecrawl{
		apiKey:  apiKey,
		baseURL: defaultFirecrawlURL,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (p *Firecrawl) Name() string       { return "firecrawl" }
func (p *Firecrawl) IsConfigured() bool { return p.apiKey != "" }

func (p *Firecrawl) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if !p.IsConfigured() {
		return nil, &domain.MissingAPIKeyError{Provider: p.Name()}
	}

	ctx, cancel := searchContext(ctx, opts)
	defer cancel()

	timeout := opts.Timeout
	if timeout <= 0 || timeout > firecrawlMaxTimeout {
		timeout = firecrawlMaxTimeout
	}

	payload, err := json.Marshal(firecrawlRequest{
		Query:     firecrawlQuery(query, opts),
		Limit:     opts.MaxResults,
		Sources:   []string{"web"},
		TBS:       tbsRange(opts.DateRange),
		Country:   "US",
		TimeoutMS: timeout.Milliseconds(),
	})
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &domain.TimeoutError{Seconds: int(timeout / time.Second)}
		}
		return nil, &domain.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	// Firecrawl signals its own upstream timeout with 408.
	if resp.StatusCode == http.StatusRequestTimeout {
		return nil, &domain.TimeoutError{Seconds: int(timeout / time.Second)}
	}
	body, err := readClassified(resp, p.Name())
	if err != nil {
		return nil, err
	}

	var fcResp firecrawlResponse
	if err := json.Unmarshal(body, &fcResp); err != nil {
		return nil, &domain.APIError{Provider: p.Name(), Message: "invalid response: " + err.Error()}
	}
	if !fcResp.Success {
		msg := fcResp.Error
		if msg == "" {
			msg = "request unsuccessful"
		}
		return nil, &domain.APIError{Provider: p.Name(), Message: msg}
	}

	results := make([]domain.SearchResult, 0, len(fcResp.Data.Web))
	for i, r := range fcResp.Data.Web {
		if len(results) >= opts.MaxResults {
			break
		}
		results = append(results, domain.SearchResult{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Description,
			Position: i + 1,
		})
	}

	p.logger.Debug("firecrawl search completed", "query", query, "results", len(results))
	return results, nil
}

func (p *Firecrawl) ValidateKey(ctx context.Context) (bool, error) {
	return validateProbe(ctx, p)
}

func firecrawlQuery(query string, opts domain.SearchOptions) string {
	var sb strings.Builder
	sb.WriteString(query)
	for _, d := range opts.IncludeDomains {
		sb.WriteString(" site:")
		sb.WriteString(d)
	}
	for _, d := range opts.ExcludeDomains {
		sb.WriteString(" -site:")
		sb.WriteString(d)
	}
	return sb.String()
}

