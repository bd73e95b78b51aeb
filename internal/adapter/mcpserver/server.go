// Package mcpserver exposes search and fetch as MCP tools over stdio, so AI
// agents can call them through the Model Context Protocol.
package mcpserver

import (
	"context"
	"log/slog"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"websearch/internal/adapter/fetch"
	"websearch/internal/adapter/output"
	"websearch/internal/domain"
	"websearch/internal/usecase"
)

const serverVersion = "1.0.0"

// Server wires the orchestrator, cache and fetcher into an MCP tool server.
type Server struct {
	mcp          *mcpserver.MCPServer
	orchestrator *usecase.Orchestrator
	cache        *usecase.ResultCache
	fetcher      *fetch.Fetcher
	defaults     domain.SearchOptions
	logger       *slog.Logger
}

// New builds the MCP server and registers the tools.
func New(orchestrator *usecase.Orchestrator, cache *usecase.ResultCache, fetcher *fetch.Fetcher, defaults domain.SearchOptions, logger *slog.Logger) *Server {
	s := &Server{
		mcp: mcpserver.NewMCPServer(
			"websearch",
			serverVersion,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
		orchestrator: orchestrator,
		cache:        cache,
		fetcher:      fetcher,
		defaults:     defaults,
		logger:       logger,
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcpgo.NewTool("web_search",
			mcpgo.WithDescription("Search the web and return ranked results with titles, URLs and snippets."),
			mcpgo.WithString("query",
				mcpgo.Required(),
				mcpgo.Description("The search query"),
			),
			mcpgo.WithNumber("num_results",
				mcpgo.Description("Number of results to return (default 10)"),
			),
			mcpgo.WithString("provider",
				mcpgo.Description("Preferred search provider (brave, google, duckduckgo, tavily, serper, firecrawl, serpapi, bing)"),
			),
		),
		s.handleWebSearch,
	)

	s.mcp.AddTool(
		mcpgo.NewTool("fetch_url",
			mcpgo.WithDescription("Fetch a web page and return its content as text, markdown or raw HTML."),
			mcpgo.WithString("url",
				mcpgo.Required(),
				mcpgo.Description("The URL to fetch"),
			),
			mcpgo.WithString("format",
				mcpgo.Description("Content format: text, markdown or html (default text)"),
			),
			mcpgo.WithNumber("max_length",
				mcpgo.Description("Maximum content length in bytes (0 = unlimited)"),
			),
		),
		s.handleFetchURL,
	)
}

func (s *Server) handleWebSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	opts := s.defaults
	if num := req.GetInt("num_results", 0); num > 0 {
		opts.MaxResults = num
	}
	preferred := req.GetString("provider", "")

	start := time.Now()
	results, providerName, cached := s.cache.Get(query, preferred)
	if !cached {
		results, providerName, err = s.orchestrator.SearchWithFallback(ctx, query, opts, preferred)
		if err != nil {
			s.logger.Warn("mcp web_search failed", "query", query, "error", err)
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		s.cache.Set(query, providerName, results)
	}

	rendered, err := output.Render(output.NewResponse(query, providerName, results, time.Since(start)), output.FormatJSON)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	return mcpgo.NewToolResultText(rendered), nil
}

func (s *Server) handleFetchURL(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	format, err := fetch.ParseContentFormat(req.GetString("format", string(fetch.FormatText)))
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	result, err := s.fetcher.Fetch(ctx, rawURL, fetch.Options{
		Format:    format,
		MaxLength: req.GetInt("max_length", 0),
		Timeout:   s.defaults.Timeout,
	})
	if err != nil {
		s.logger.Warn("mcp fetch_url failed", "url", rawURL, "error", err)
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	return mcpgo.NewToolResultText(result.Content), nil
}
