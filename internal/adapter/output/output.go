// Package output renders search responses for the CLI: pretty JSON,
// Markdown, or plain text.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"websearch/internal/domain"
)

// Format selects the rendering of a search response.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// ParseFormat converts a user-supplied string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatMarkdown, FormatText:
		return Format(s), nil
	}
	return "", &domain.ConfigError{Message: fmt.Sprintf("invalid output format %q (json, markdown, text)", s)}
}

// Response is the renderable search outcome: the results plus which provider
// produced them and how long the whole operation took.
type Response struct {
	Query        string                `json:"query"`
	Provider     string                `json:"provider"`
	Timestamp    time.Time             `json:"timestamp"`
	TotalResults int                   `json:"total_results"`
	SearchTimeMs int64                 `json:"search_time_ms"`
	Results      []domain.SearchResult `json:"results"`
}

// NewResponse assembles a response with the timestamp set to now.
func NewResponse(query, provider string, results []domain.SearchResult, elapsed time.Duration) Response {
	return Response{
		Query:        query,
		Provider:     provider,
		Timestamp:    time.Now().UTC(),
		TotalResults: len(results),
		SearchTimeMs: elapsed.Milliseconds(),
		Results:      results,
	}
}

// Render formats the response in the requested format.
func Render(resp Response, format Format) (string, error) {
	switch format {
	case FormatJSON:
		return renderJSON(resp)
	case FormatMarkdown:
		return renderMarkdown(resp), nil
	case FormatText:
		return renderText(resp), nil
	}
	return "", &domain.ConfigError{Message: fmt.Sprintf("invalid output format %q", format)}
}

func renderJSON(resp Response) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal response: %w", err)
	}
	return string(data), nil
}

func renderMarkdown(resp Response) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Search Results: %s\n\n", resp.Query)
	fmt.Fprintf(&sb, "*Provider: %s | Results: %d | Time: %dms*\n\n",
		resp.Provider, resp.TotalResults, resp.SearchTimeMs)

	for i, r := range resp.Results {
		fmt.Fprintf(&sb, "## %d. %s\n\n", r.Position, r.Title)
		fmt.Fprintf(&sb, "**URL:** <%s>\n\n", r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "%s\n\n", r.Snippet)
		}
		if r.Source != "" {
			fmt.Fprintf(&sb, "**Source:** %s\n\n", r.Source)
		}
		if r.PublishedDate != "" {
			fmt.Fprintf(&sb, "**Published:** %s\n\n", r.PublishedDate)
		}
		if i < len(resp.Results)-1 {
			sb.WriteString("---\n\n")
		}
	}
	return sb.String()
}

func renderText(resp Response) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search: %q (%d results from %s in %dms)\n",
		resp.Query, resp.TotalResults, resp.Provider, resp.SearchTimeMs)
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	for _, r := range resp.Results {
		fmt.Fprintf(&sb, "%d. %s\n", r.Position, r.Title)
		fmt.Fprintf(&sb, "   %s\n", r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", truncateSnippet(r.Snippet, 200))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// truncateSnippet shortens a snippet at a word boundary near the limit.
func truncateSnippet(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
