package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"websearch/internal/domain"
)

const defaultDuckDuckGoURL = "https://api.duckduckgo.com/"

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"` // nested under category groupings
}

type ddgResponse struct {
	Heading        string     `json:"Heading"`
	AbstractText   string     `json:"AbstractText"`
	AbstractURL    string     `json:"AbstractURL"`
	AbstractSource string     `json:"AbstractSource"`
	RelatedTopics  []ddgTopic `json:"RelatedTopics"`
}

// DuckDuckGo searches via the DuckDuckGo Instant Answer API. It needs no
// credentials; an enabled flag stands in for configuration. Results are
// limited to the abstract plus related topics, which is what the API offers.
type DuckDuckGo struct {
	enabled bool
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewDuckDuckGo(enabled bool, logger *slog.Logger) *DuckDuckGo {
	return &DuckDuckGo{
		enabled: enabled,
		baseURL: defaultDuckDuckGoURL,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (p *DuckDuckGo) Name() string       { return "duckduckgo" }
func (p *DuckDuckGo) IsConfigured() bool { return p.enabled }

func (p *DuckDuckGo) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	ctx, cancel := searchContext(ctx, opts)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}

	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	req.URL.RawQuery = q.Encode()

	body, err := doRequest(p.client, req, p.Name(), opts)
	if err != nil {
		return nil, err
	}

	var ddgResp ddgResponse
	if err := json.Unmarshal(body, &ddgResp); err != nil {
		return nil, &domain.APIError{Provider: p.Name(), Message: "invalid response: " + err.Error()}
	}

	var results []domain.SearchResult
	if ddgResp.AbstractText != "" && ddgResp.AbstractURL != "" {
		results = append(results, domain.SearchResult{
			Title:    ddgResp.Heading,
			URL:      ddgResp.AbstractURL,
			Snippet:  ddgResp.AbstractText,
			Position: 1,
			Source:   ddgResp.AbstractSource,
		})
	}
	results = appendTopics(results, ddgResp.RelatedTopics, opts.MaxResults)

	p.logger.Debug("duckduckgo search completed", "query", query, "results", len(results))
	return results, nil
}

func (p *DuckDuckGo) ValidateKey(ctx context.Context) (bool, error) {
	// No key to validate; enabled is all there is.
	return p.enabled, nil
}

// appendTopics flattens related topics (including category groupings) into
// results until the limit is reached.
func appendTopics(results []domain.SearchResult, topics []ddgTopic, limit int) []domain.SearchResult {
	for _, topic := range topics {
		if len(results) >= limit {
			break
		}
		if len(topic.Topics) > 0 {
			results = appendTopics(results, topic.Topics, limit)
			continue
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, domain.SearchResult{
			Title:    topicTitle(topic.Text),
			URL:      topic.FirstURL,
			Snippet:  topic.Text,
			Position: len(results) + 1,
		})
	}
	return results
}

// topicTitle shortens a topic's text into a title.
func topicTitle(text string) string {
	const limit = 100
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
