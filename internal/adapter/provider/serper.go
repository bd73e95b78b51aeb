package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"websearch/internal/domain"
)

const defaultSerperURL = "https://google.serper.dev/search"

type serperRequest struct {
	Q    string `json:"q"`
	Num  int    `json:"num"`
	Safe bool   `json:"safe"`
}

type serperResponse struct {
	Organic []struct {
		Title         string `json:"title"`
		Link          string `json:"link"`
		Snippet       string `json:"snippet"`
		Date          string `json:"date"`
		DisplayedLink string `json:"displayedLink"`
		Position      int    `json:"position"`
	} `json:"organic"`
}

// Serper searches Google results via the Serper.dev API.
type Serper struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewSerper(apiKey string, logger *slog.Logger) *Serper {
	return &Serper{
		apiKey:  apiKey,
		baseURL: defaultSerperURL,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (p *Serper) Name() string       { return "serper" }
func (p *Serper) IsConfigured() bool { return p.apiKey != "" }

func (p *Serper) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if !p.IsConfigured() {
		return nil, &domain.MissingAPIKeyError{Provider: p.Name()}
	}

	ctx, cancel := searchContext(ctx, opts)
	defer cancel()

	payload, err := json.Marshal(serperRequest{
		Q:    query,
		Num:  opts.MaxResults,
		Safe: opts.SafeSearch != domain.SafeSearchOff,
	})
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", p.apiKey)

	body, err := doRequest(p.client, req, p.Name(), opts)
	if err != nil {
		return nil, err
	}

	var serperResp serperResponse
	if err := json.Unmarshal(body, &serperResp); err != nil {
		return nil, &domain.APIError{Provider: p.Name(), Message: "invalid response: " + err.Error()}
	}

	results := make([]domain.SearchResult, 0, len(serperResp.Organic))
	for i, r := range serperResp.Organic {
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
			Source:        serperSource(r.DisplayedLink),
		})
	}

	p.logger.Debug("serper search completed", "query", query, "results", len(results))
	return results, nil
}

func (p *Serper) ValidateKey(ctx context.Context) (bool, error) {
	return validateProbe(ctx, p)
}

// serperSource takes the site name from a displayed link like
// "example.com › docs › intro".
func serperSource(displayed string) string {
	if displayed == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(displayed, " › ", 2)[0])
}
