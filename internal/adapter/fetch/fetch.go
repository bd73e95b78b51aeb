// Package fetch retrieves a single web page and converts its content for
// display: raw HTML, plain text, or Markdown.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

const (
	maxRedirects   = 10
	maxFetchBody   = 5 * 1024 * 1024 // 5MB
	defaultTimeout = 30 * time.Second
	userAgent      = "websearch/1.0"
)

// ContentFormat selects how fetched content is returned.
type ContentFormat string

const (
	FormatHTML     ContentFormat = "html"
	FormatText     ContentFormat = "text"
	FormatMarkdown ContentFormat = "markdown"
)

// ParseContentFormat converts a user-supplied string to a ContentFormat.
func ParseContentFormat(s string) (ContentFormat, error) {
	switch ContentFormat(s) {
	case FormatHTML, FormatText, FormatMarkdown:
		return ContentFormat(s), nil
	}
	return "", &domain.ConfigError{Message: fmt.Sprintf("invalid content format %q (html, text, markdown)", s)}
}

// Options controls a single fetch.
type Options struct {
	Format    ContentFormat
	MaxLength int // 0 = unlimited
	Timeout   time.Duration
}

// Result is the outcome of a fetch, including where redirects ended up.
type Result struct {
	URL           string `json:"url"`
	FinalURL      string `json:"final_url"`
	Status        int    `json:"status"`
	ContentType   string `json:"content_type"`
	Content       string `json:"content"`
	ContentLength int    `json:"content_length"`
	Title         string `json:"title,omitempty"`
}

// Fetcher retrieves web pages over plain HTTP(S).
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a fetcher with a bounded redirect chain.
func NewFetcher(logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (max %d)", maxRedirects)
				}
				return nil
			},
		},
		logger: logger,
	}
}

// Fetch retrieves rawURL and converts the body per opts.Format. Only http
// and https URLs are accepted.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, &domain.ConfigError{Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &domain.ConfigError{Message: fmt.Sprintf("unsupported URL scheme %q (only http and https)", parsed.Scheme)}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracer.StartSpan(ctx, "fetch.url",
		trace.WithAttributes(tracer.StringAttr("fetch.url", rawURL)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.NetworkError{Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &domain.TimeoutError{Seconds: int(timeout / time.Second)}
		} else {
			err = &domain.NetworkError{Err: err}
		}
		tracer.RecordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &domain.APIError{Provider: "fetch", Message: fmt.Sprintf("HTTP %d fetching %s", resp.StatusCode, rawURL)}
		tracer.RecordError(span, err)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, &domain.NetworkError{Err: fmt.Errorf("read body: %w", err)}
	}

	contentType := resp.Header.Get("Content-Type")
	content := string(body)
	var title string

	if isHTML(contentType, content) {
		title = extractTitle(content)
		switch opts.Format {
		case FormatText:
			content, err = htmlToText(content)
		case FormatMarkdown:
			content, err = htmlToMarkdown(content)
		}
		if err != nil {
			return nil, &domain.APIError{Provider: "fetch", Message: "parse HTML: " + err.Error()}
		}
	}

	truncated := false
	if opts.MaxLength > 0 && len(content) > opts.MaxLength {
		content = content[:opts.MaxLength] + "\n... [truncated]"
		truncated = true
	}

	f.logger.Debug("fetch completed",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"truncated", truncated,
	)
	tracer.SetOK(span)

	return &Result{
		URL:           rawURL,
		FinalURL:      resp.Request.URL.String(),
		Status:        resp.StatusCode,
		ContentType:   contentType,
		Content:       content,
		ContentLength: len(content),
		Title:         title,
	}, nil
}

// isHTML sniffs whether a body should go through HTML conversion.
func isHTML(contentType, body string) bool {
	if strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml") {
		return true
	}
	head := strings.ToLower(strings.TrimSpace(body))
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}
