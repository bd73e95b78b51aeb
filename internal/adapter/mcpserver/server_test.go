package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/internal/adapter/fetch"
	"websearch/internal/adapter/output"
	"websearch/internal/domain"
	"websearch/internal/usecase"
)

type stubProvider struct {
	name  string
	err   error
	calls int
}

func (p *stubProvider) Name() string       { return p.name }
func (p *stubProvider) IsConfigured() bool { return true }

func (p *stubProvider) Search(context.Context, string, domain.SearchOptions) ([]domain.SearchResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []domain.SearchResult{{Title: "Hit", URL: "https://example.com", Snippet: "snippet", Position: 1}}, nil
}

func (p *stubProvider) ValidateKey(context.Context) (bool, error) { return true, nil }

func newTestServer(p domain.SearchProvider) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := usecase.NewOrchestrator([]string{p.Name()}, logger)
	orch.Register(p)
	cache := usecase.NewResultCache(usecase.CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 10})
	return New(orch, cache, fetch.NewFetcher(logger), domain.DefaultSearchOptions(), logger)
}

func callReq(args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcpgo.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestWebSearchTool(t *testing.T) {
	p := &stubProvider{name: "stub"}
	s := newTestServer(p)

	result, err := s.handleWebSearch(context.Background(), callReq(map[string]any{
		"query": "golang testing",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp output.Response
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &resp))
	assert.Equal(t, "golang testing", resp.Query)
	assert.Equal(t, "stub", resp.Provider)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Hit", resp.Results[0].Title)
}

func TestWebSearchToolUsesCache(t *testing.T) {
	p := &stubProvider{name: "stub"}
	s := newTestServer(p)

	// Writes are keyed by the producing provider, so a repeat lookup only
	// hits when the request names that provider.
	for i := 0; i < 2; i++ {
		result, err := s.handleWebSearch(context.Background(), callReq(map[string]any{"query": "repeat me", "provider": "stub"}))
		require.NoError(t, err)
		require.False(t, result.IsError)
	}
	assert.Equal(t, 1, p.calls, "second call should be served from cache")
}

func TestWebSearchToolMissingQuery(t *testing.T) {
	s := newTestServer(&stubProvider{name: "stub"})
	result, err := s.handleWebSearch(context.Background(), callReq(map[string]any{}))
	require.NoError(t, err, "tool errors are reported in-band, not as handler errors")
	assert.True(t, result.IsError)
}

func TestWebSearchToolProviderFailure(t *testing.T) {
	p := &stubProvider{name: "stub", err: &domain.APIError{Provider: "stub", Message: "boom"}}
	s := newTestServer(p)

	result, err := s.handleWebSearch(context.Background(), callReq(map[string]any{"query": "q"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "boom")
}

func TestFetchURLTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>T</title></head><body><p>Fetched body</p></body></html>"))
	}))
	defer srv.Close()

	s := newTestServer(&stubProvider{name: "stub"})
	result, err := s.handleFetchURL(context.Background(), callReq(map[string]any{
		"url":    srv.URL,
		"format": "text",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, textContent(t, result), "Fetched body")
}

func TestFetchURLToolBadFormat(t *testing.T) {
	s := newTestServer(&stubProvider{name: "stub"})
	result, err := s.handleFetchURL(context.Background(), callReq(map[string]any{
		"url":    "https://example.com",
		"format": "pdf",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
