package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"websearch/internal/adapter/fetch"
	"websearch/internal/adapter/mcpserver"
	"websearch/internal/adapter/output"
	"websearch/internal/adapter/provider"
	"websearch/internal/domain"
	"websearch/internal/infra/config"
	"websearch/internal/infra/logger"
	"websearch/internal/infra/tracer"
	"websearch/internal/usecase"
)

const version = "1.0.0"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "--version", "version":
			fmt.Println("websearch " + version)
			return
		}
	}

	var err error
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		err = runSearch(os.Args[1:])
	} else {
		switch os.Args[1] {
		case "search":
			err = runSearch(os.Args[2:])
		case "config":
			err = runConfig(os.Args[2:])
		case "providers":
			err = runProviders()
		case "cache":
			err = runCache(os.Args[2:])
		case "fetch":
			err = runFetch(os.Args[2:])
		case "mcp":
			err = runMCP()
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'websearch --help' for usage information.\n", os.Args[1])
			os.Exit(1)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`websearch - Search the web from your terminal

USAGE:
    websearch [QUERY] [FLAGS]
    websearch [COMMAND] [ARGS]

COMMANDS:
    search      Search the web (default when a query is given)
    fetch URL   Fetch a web page as text, markdown or HTML
    providers   List search providers and their status
    config      Manage configuration
                Subcommands: init, set KEY VALUE, get KEY, list, validate, path
    cache       Result cache operations
                Subcommands: stats, clear
    mcp         Serve search tools over the Model Context Protocol (stdio)
    version     Print the version

SEARCH FLAGS:
    -p, --provider NAME      Preferred provider for this query
    -f, --format FORMAT      Output format: text, markdown, json
    -n, --num N              Number of results
    -o, --output FILE        Write output to a file instead of stdout
    --safe-search LEVEL      off, moderate, strict
    --date-range RANGE       day, week, month, year
    --include-domains LIST   Comma-separated domains to prefer
    --exclude-domains LIST   Comma-separated domains to exclude
    --timeout SECONDS        Per-request timeout
    --no-cache               Bypass the result cache

CONFIGURATION:
    Config file: see 'websearch config path'
    Environment: WEBSEARCH_* variables override config
    API keys:    WEBSEARCH_BRAVE_API_KEY, WEBSEARCH_GOOGLE_API_KEY, ...

EXAMPLES:
    websearch "rust async runtime"
    websearch -p tavily -n 5 -f json "golang generics"
    websearch fetch https://go.dev/blog -f markdown
    websearch config set providers.brave.api_key BSA-...
    websearch config validate`)
}

// app bundles everything a command needs after startup.
type app struct {
	cfg            *config.Config
	logger         *slog.Logger
	closeLog       func() error
	shutdownTracer func(context.Context) error
	orchestrator   *usecase.Orchestrator
	cache          *usecase.ResultCache
	fetcher        *fetch.Fetcher
}

// newApp loads config and wires the providers, cache and fetcher. When
// quietStdout is set the logger is kept away from stdout, which MCP mode
// needs for the protocol stream.
func newApp(quietStdout bool) (*app, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	if quietStdout && strings.EqualFold(logCfg.Output, "stdout") {
		logCfg.Output = "stderr"
	}
	log, closeLog, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}

	shutdownTracer, err := tracer.Setup(context.Background(), cfg.Tracing)
	if err != nil {
		closeLog()
		return nil, err
	}

	orch := usecase.NewOrchestrator(cfg.FallbackOrder, log)
	for _, p := range buildProviders(cfg, log) {
		orch.Register(p)
	}

	return &app{
		cfg:            cfg,
		logger:         log,
		closeLog:       closeLog,
		shutdownTracer: shutdownTracer,
		orchestrator:   orch,
		cache: usecase.NewResultCache(usecase.CacheConfig{
			Enabled:    cfg.Cache.Enabled,
			TTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			MaxEntries: cfg.Cache.MaxEntries,
		}),
		fetcher: fetch.NewFetcher(log),
	}, nil
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.shutdownTracer(ctx)
	a.closeLog()
}

// buildProviders constructs the adapters from config, disabled providers
// excluded, and applies the optional rate-limit and circuit-breaker
// wrappers.
func buildProviders(cfg *config.Config, log *slog.Logger) []domain.SearchProvider {
	var providers []domain.SearchProvider
	for _, name := range config.ProviderNames {
		pc := cfg.Providers.Provider(name)
		if !pc.Enabled {
			continue
		}

		var p domain.SearchProvider
		switch name {
		case "brave":
			p = provider.NewBrave(pc.APIKey, log)
		case "google":
			p = provider.NewGoogle(pc.APIKey, pc.CX, log)
		case "duckduckgo":
			p = provider.NewDuckDuckGo(pc.Enabled, log)
		case "tavily":
			p = provider.NewTavily(pc.APIKey, log)
		case "serper":
			p = provider.NewSerper(pc.APIKey, log)
		case "firecrawl":
			p = provider.NewFirecrawl(pc.APIKey, log)
		case "serpapi":
			p = provider.NewSerpAPI(pc.APIKey, log)
		case "bing":
			p = provider.NewBing(pc.APIKey, log)
		}

		if rpm := cfg.Resilience.RateLimits[name]; rpm > 0 {
			p = provider.NewRateLimitedProvider(p, rpm)
		}
		if cfg.Resilience.Breaker.Enabled {
			p = provider.NewBreakerProvider(p, provider.BreakerConfig{
				MaxFailures: cfg.Resilience.Breaker.MaxFailures,
				Timeout:     time.Duration(cfg.Resilience.Breaker.TimeoutSeconds) * time.Second,
			}, log)
		}
		providers = append(providers, p)
	}
	return providers
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var (
		providerName   string
		format         string
		numResults     int
		outputFile     string
		safeSearch     string
		dateRange      string
		includeDomains string
		excludeDomains string
		timeoutSecs    int
		noCache        bool
	)
	fs.StringVar(&providerName, "p", "", "preferred provider")
	fs.StringVar(&providerName, "provider", "", "preferred provider")
	fs.StringVar(&format, "f", "", "output format")
	fs.StringVar(&format, "format", "", "output format")
	fs.IntVar(&numResults, "n", 0, "number of results")
	fs.IntVar(&numResults, "num", 0, "number of results")
	fs.StringVar(&outputFile, "o", "", "output file")
	fs.StringVar(&outputFile, "output", "", "output file")
	fs.StringVar(&safeSearch, "safe-search", "", "safe search level")
	fs.StringVar(&dateRange, "date-range", "", "date range filter")
	fs.StringVar(&includeDomains, "include-domains", "", "domains to prefer")
	fs.StringVar(&excludeDomains, "exclude-domains", "", "domains to exclude")
	fs.IntVar(&timeoutSecs, "timeout", 0, "per-request timeout in seconds")
	fs.BoolVar(&noCache, "no-cache", false, "bypass the result cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return fmt.Errorf("no search query given (try 'websearch --help')")
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := searchOptions(a.cfg, numResults, safeSearch, dateRange, includeDomains, excludeDomains, timeoutSecs)
	if err != nil {
		return err
	}

	if format == "" {
		format = a.cfg.Defaults.Format
	}
	outFormat, err := output.ParseFormat(format)
	if err != nil {
		return err
	}

	preferred := providerName
	if preferred == "" {
		preferred = a.cfg.DefaultProvider
	}

	start := time.Now()
	results, usedProvider, hit := []domain.SearchResult(nil), "", false
	if !noCache {
		results, usedProvider, hit = a.cache.Get(query, providerName)
	}
	if !hit {
		results, usedProvider, err = a.orchestrator.SearchWithFallback(context.Background(), query, opts, preferred)
		if err != nil {
			return err
		}
		if !noCache {
			a.cache.Set(query, usedProvider, results)
		}
	}

	rendered, err := output.Render(output.NewResponse(query, usedProvider, results, time.Since(start)), outFormat)
	if err != nil {
		return err
	}
	return writeOut(outputFile, rendered)
}

// searchOptions merges CLI flags over the configured defaults.
func searchOptions(cfg *config.Config, numResults int, safeSearch, dateRange, includeDomains, excludeDomains string, timeoutSecs int) (domain.SearchOptions, error) {
	opts := domain.SearchOptions{
		MaxResults: cfg.Defaults.NumResults,
		SafeSearch: domain.SafeSearch(cfg.Defaults.SafeSearch),
		Timeout:    time.Duration(cfg.Defaults.TimeoutSeconds) * time.Second,
	}
	if numResults > 0 {
		opts.MaxResults = numResults
	}
	if safeSearch != "" {
		level, err := domain.ParseSafeSearch(safeSearch)
		if err != nil {
			return opts, err
		}
		opts.SafeSearch = level
	}
	if dateRange != "" {
		rng, err := domain.ParseDateRange(dateRange)
		if err != nil {
			return opts, err
		}
		opts.DateRange = rng
	}
	opts.IncludeDomains = splitDomains(includeDomains)
	opts.ExcludeDomains = splitDomains(excludeDomains)
	if timeoutSecs > 0 {
		opts.Timeout = time.Duration(timeoutSecs) * time.Second
	}
	return opts, nil
}

func splitDomains(list string) []string {
	if list == "" {
		return nil
	}
	var domains []string
	for _, d := range strings.Split(list, ",") {
		if trimmed := strings.TrimSpace(d); trimmed != "" {
			domains = append(domains, trimmed)
		}
	}
	return domains
}

func writeOut(path, content string) error {
	if path == "" {
		fmt.Println(content)
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}

func runConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: websearch config {init|set|get|list|validate|path}")
	}

	path, err := config.DefaultPath()
	if err != nil {
		return err
	}

	switch args[0] {
	case "path":
		fmt.Println(path)
		return nil

	case "init":
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("created %s\n", path)
		return nil

	case "set":
		if len(args) != 3 {
			return fmt.Errorf("usage: websearch config set KEY VALUE")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(args[1], args[2]); err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("%s updated\n", args[1])
		return nil

	case "get":
		if len(args) != 2 {
			return fmt.Errorf("usage: websearch config get KEY")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		value, err := cfg.Get(args[1])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil

	case "list":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		pairs, err := cfg.List()
		if err != nil {
			return err
		}
		for _, kv := range pairs {
			fmt.Printf("%s = %s\n", kv[0], kv[1])
		}
		return nil

	case "validate":
		return runConfigValidate()

	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

// runConfigValidate checks the config structurally and probes each
// configured provider's credentials with a live one-result search.
func runConfigValidate() error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	fmt.Println("configuration OK")
	for _, p := range a.orchestrator.Providers() {
		if !p.IsConfigured() {
			fmt.Printf("  %-12s not configured\n", p.Name())
			continue
		}
		ok, err := p.ValidateKey(ctx)
		switch {
		case err != nil:
			fmt.Printf("  %-12s probe failed: %v\n", p.Name(), err)
		case ok:
			fmt.Printf("  %-12s key valid\n", p.Name())
		default:
			fmt.Printf("  %-12s key rejected\n", p.Name())
		}
	}
	return nil
}

func runProviders() error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	inOrder := make(map[string]int)
	for i, p := range a.orchestrator.ProvidersInOrder() {
		inOrder[p.Name()] = i + 1
	}

	fmt.Printf("%-12s %-12s %-10s %s\n", "PROVIDER", "CONFIGURED", "ORDER", "NOTES")
	for _, name := range config.ProviderNames {
		p, registered := a.orchestrator.Provider(name)
		if !registered {
			fmt.Printf("%-12s %-12s %-10s %s\n", name, "-", "-", "disabled")
			continue
		}
		configured := "no"
		order := "-"
		if p.IsConfigured() {
			configured = "yes"
			if pos, ok := inOrder[name]; ok {
				order = fmt.Sprintf("%d", pos)
			}
		}
		note := ""
		if name == a.cfg.DefaultProvider {
			note = "default"
		}
		fmt.Printf("%-12s %-12s %-10s %s\n", name, configured, order, note)
	}
	return nil
}

func runCache(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: websearch cache {stats|clear}")
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "stats":
		stats := a.cache.Stats()
		fmt.Printf("enabled:     %v\n", stats.Enabled)
		fmt.Printf("entries:     %d\n", stats.Entries)
		fmt.Printf("max entries: %d\n", stats.MaxEntries)
		fmt.Printf("ttl:         %ds\n", stats.TTLSeconds)
		return nil
	case "clear":
		a.cache.Clear()
		fmt.Println("cache cleared")
		return nil
	default:
		return fmt.Errorf("unknown cache subcommand: %s", args[0])
	}
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var (
		format      string
		outputFile  string
		maxLength   int
		timeoutSecs int
		asJSON      bool
	)
	fs.StringVar(&format, "f", "text", "content format: text, markdown, html")
	fs.StringVar(&format, "format", "text", "content format: text, markdown, html")
	fs.StringVar(&outputFile, "o", "", "output file")
	fs.StringVar(&outputFile, "output", "", "output file")
	fs.IntVar(&maxLength, "max-length", 0, "maximum content length (0 = unlimited)")
	fs.IntVar(&timeoutSecs, "timeout", 0, "timeout in seconds")
	fs.BoolVar(&asJSON, "json", false, "emit the full fetch result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: websearch fetch URL [FLAGS]")
	}

	contentFormat, err := fetch.ParseContentFormat(format)
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	timeout := time.Duration(a.cfg.Defaults.TimeoutSeconds) * time.Second
	if timeoutSecs > 0 {
		timeout = time.Duration(timeoutSecs) * time.Second
	}

	result, err := a.fetcher.Fetch(context.Background(), fs.Arg(0), fetch.Options{
		Format:    contentFormat,
		MaxLength: maxLength,
		Timeout:   timeout,
	})
	if err != nil {
		return err
	}

	content := result.Content
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		content = string(data)
	}
	return writeOut(outputFile, content)
}

func runMCP() error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	defaults := domain.SearchOptions{
		MaxResults: a.cfg.Defaults.NumResults,
		SafeSearch: domain.SafeSearch(a.cfg.Defaults.SafeSearch),
		Timeout:    time.Duration(a.cfg.Defaults.TimeoutSeconds) * time.Second,
	}
	srv := mcpserver.New(a.orchestrator, a.cache, a.fetcher, defaults, a.logger)
	a.logger.Info("mcp server starting", "version", version)
	return srv.ServeStdio()
}
