package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Sample Page</title>
  <style>body { color: red; }</style>
  <script>console.log("noise");</script>
</head>
<body>
  <h1>Welcome</h1>
  <p>This is a <strong>sample</strong> page about <a href="https://go.dev">Go</a>.</p>
  <ul>
    <li>First item</li>
    <li>Second item</li>
  </ul>
  <pre>func main() {}</pre>
  <blockquote>Quoted wisdom</blockquote>
  <hr>
  <p>HTML entities: &amp; &lt; &gt;</p>
</body>
</html>`

func TestFetchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(newTestLogger())
	result, err := f.Fetch(context.Background(), srv.URL, Options{Format: FormatText})
	require.NoError(t, err)

	assert.Equal(t, "Sample Page", result.Title)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Contains(t, result.Content, "Welcome")
	assert.Contains(t, result.Content, "This is a sample page about Go")
	assert.NotContains(t, result.Content, "console.log", "script content must be stripped")
	assert.NotContains(t, result.Content, "color: red", "style content must be stripped")
	assert.Contains(t, result.Content, "& < >", "entities must be decoded")
	assert.Equal(t, len(result.Content), result.ContentLength)
}

func TestFetchMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(newTestLogger())
	result, err := f.Fetch(context.Background(), srv.URL, Options{Format: FormatMarkdown})
	require.NoError(t, err)

	for _, want := range []string{
		"# Welcome",
		"**sample**",
		"[Go](https://go.dev)",
		"- First item",
		"- Second item",
		"```\nfunc main() {}\n```",
		"> Quoted wisdom",
		"---",
	} {
		assert.Contains(t, result.Content, want)
	}
	assert.NotContains(t, result.Content, "console.log")
}

func TestFetchHTMLPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(newTestLogger())
	result, err := f.Fetch(context.Background(), srv.URL, Options{Format: FormatHTML})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "<h1>Welcome</h1>")
	assert.Equal(t, "Sample Page", result.Title, "title is extracted even in html mode")
}

func TestFetchNonHTMLPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hello":"world"}`))
	}))
	defer srv.Close()

	f := NewFetcher(newTestLogger())
	result, err := f.Fetch(context.Background(), srv.URL, Options{Format: FormatText})
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, result.Content)
	assert.Empty(t, result.Title)
}

func TestFetchMaxLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 500)))
	}))
	defer srv.Close()

	f := NewFetcher(newTestLogger())
	result, err := f.Fetch(context.Background(), srv.URL, Options{Format: FormatText, MaxLength: 100})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.Content, "... [truncated]"))
	assert.Len(t, result.Content, 100+len("\n... [truncated]"))
}

func TestFetchFollowsRedirects(t *testing.T) {
	var final string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("landed"))
	}))
	defer target.Close()
	final = target.URL

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final, http.StatusFound)
	}))
	defer srv.Close()

	f := NewFetcher(newTestLogger())
	result, err := f.Fetch(context.Background(), srv.URL, Options{Format: FormatText})
	require.NoError(t, err)
	assert.Equal(t, srv.URL, result.URL)
	assert.Equal(t, final, result.FinalURL)
	assert.Equal(t, "landed", result.Content)
}

func TestFetchRejectsBadScheme(t *testing.T) {
	f := NewFetcher(newTestLogger())
	for _, bad := range []string{"ftp://example.com/file", "file:///etc/passwd"} {
		_, err := f.Fetch(context.Background(), bad, Options{Format: FormatText})
		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr, bad)
	}
}

func TestFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(newTestLogger())
	_, err := f.Fetch(context.Background(), srv.URL, Options{Format: FormatText})
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "HTTP 404")
}

func TestParseContentFormat(t *testing.T) {
	for _, ok := range []string{"html", "text", "markdown"} {
		if _, err := ParseContentFormat(ok); err != nil {
			t.Errorf("ParseContentFormat(%q) unexpected error: %v", ok, err)
		}
	}
	if _, err := ParseContentFormat("pdf"); err == nil {
		t.Error("ParseContentFormat(pdf) should fail")
	}
}
