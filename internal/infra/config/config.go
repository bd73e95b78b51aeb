// Package config loads, persists and edits the application configuration:
// provider credentials, fallback order, cache and resilience settings, and
// the ambient logging/tracing knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to all environment override names.
const envPrefix = "WEBSEARCH_"

// ProviderNames lists the known providers in registration order.
var ProviderNames = []string{
	"brave", "google", "duckduckgo", "tavily", "serper", "firecrawl", "serpapi", "bing",
}

// ProviderConfig holds one provider's credentials and enablement.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	CX      string `yaml:"cx"` // google custom search engine id
	Enabled bool   `yaml:"enabled"`
}

// ProvidersConfig groups the per-provider settings.
type ProvidersConfig struct {
	Brave      ProviderConfig `yaml:"brave"`
	Google     ProviderConfig `yaml:"google"`
	DuckDuckGo ProviderConfig `yaml:"duckduckgo"`
	Tavily     ProviderConfig `yaml:"tavily"`
	Serper     ProviderConfig `yaml:"serper"`
	Firecrawl  ProviderConfig `yaml:"firecrawl"`
	SerpAPI    ProviderConfig `yaml:"serpapi"`
	Bing       ProviderConfig `yaml:"bing"`
}

// Provider returns the named provider's config, or nil for unknown names.
func (p *ProvidersConfig) Provider(name string) *ProviderConfig {
	switch name {
	case "brave":
		return &p.Brave
	case "google":
		return &p.Google
	case "duckduckgo":
		return &p.DuckDuckGo
	case "tavily":
		return &p.Tavily
	case "serper":
		return &p.Serper
	case "firecrawl":
		return &p.Firecrawl
	case "serpapi":
		return &p.SerpAPI
	case "bing":
		return &p.Bing
	}
	return nil
}

// DefaultsConfig holds the search defaults applied when the caller does not
// specify a value.
type DefaultsConfig struct {
	NumResults     int    `yaml:"num_results"`
	SafeSearch     string `yaml:"safe_search"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Format         string `yaml:"format"`
}

// CacheConfig holds the result cache settings.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
	MaxEntries int  `yaml:"max_entries"`
}

// BreakerConfig holds the per-provider circuit breaker settings.
type BreakerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	MaxFailures    uint32 `yaml:"max_failures"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ResilienceConfig groups the optional provider wrappers.
type ResilienceConfig struct {
	Breaker    BreakerConfig  `yaml:"breaker"`
	RateLimits map[string]int `yaml:"rate_limits,omitempty"` // provider -> requests per minute
}

// LoggerConfig holds the logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds the tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Config is the root configuration.
type Config struct {
	DefaultProvider string           `yaml:"default_provider"`
	Providers       ProvidersConfig  `yaml:"providers"`
	FallbackOrder   []string         `yaml:"fallback_order"`
	Defaults        DefaultsConfig   `yaml:"defaults"`
	Cache           CacheConfig      `yaml:"cache"`
	Resilience      ResilienceConfig `yaml:"resilience"`
	Logging         LoggerConfig     `yaml:"logging"`
	Tracing         TracerConfig     `yaml:"tracing"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		DefaultProvider: "brave",
		FallbackOrder:   []string{"brave", "google", "duckduckgo"},
		Defaults: DefaultsConfig{
			NumResults:     10,
			SafeSearch:     "moderate",
			TimeoutSeconds: 30,
			Format:         "text",
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 3600,
			MaxEntries: 1000,
		},
		Resilience: ResilienceConfig{
			Breaker: BreakerConfig{
				Enabled:        false,
				MaxFailures:    5,
				TimeoutSeconds: 30,
			},
		},
		Logging: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracing: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
	for _, name := range ProviderNames {
		cfg.Providers.Provider(name).Enabled = true
	}
	return cfg
}

// DefaultPath returns the config file location: WEBSEARCH_CONFIG if set,
// otherwise <user config dir>/websearch/config.yaml.
func DefaultPath() (string, error) {
	if env := os.Getenv(envPrefix + "CONFIG"); env != "" {
		return env, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "websearch", "config.yaml"), nil
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error; defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, cfg.Validate()
}

// Save writes the config to path, creating the directory if needed. The file
// carries API keys, so it is written mode 0600.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies WEBSEARCH_* environment variables on top of the
// loaded config. Env always wins over file contents.
func applyEnvOverrides(cfg *Config) {
	for _, name := range ProviderNames {
		if v := os.Getenv(envPrefix + strings.ToUpper(name) + "_API_KEY"); v != "" {
			cfg.Providers.Provider(name).APIKey = v
		}
	}
	if v := os.Getenv(envPrefix + "GOOGLE_CX"); v != "" {
		cfg.Providers.Google.CX = v
	}
	if v := os.Getenv(envPrefix + "DEFAULT_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the structural health of the configuration.
func (c *Config) Validate() error {
	if c.Providers.Provider(c.DefaultProvider) == nil {
		return fmt.Errorf("unknown default_provider %q", c.DefaultProvider)
	}
	for _, name := range c.FallbackOrder {
		if c.Providers.Provider(name) == nil {
			return fmt.Errorf("unknown provider %q in fallback_order", name)
		}
	}
	if c.Defaults.NumResults <= 0 {
		return fmt.Errorf("defaults.num_results must be positive")
	}
	if c.Defaults.TimeoutSeconds <= 0 {
		return fmt.Errorf("defaults.timeout_seconds must be positive")
	}
	switch c.Defaults.SafeSearch {
	case "off", "moderate", "strict":
	default:
		return fmt.Errorf("invalid defaults.safe_search %q", c.Defaults.SafeSearch)
	}
	switch c.Defaults.Format {
	case "json", "markdown", "text":
	default:
		return fmt.Errorf("invalid defaults.format %q", c.Defaults.Format)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	for name := range c.Resilience.RateLimits {
		if c.Providers.Provider(name) == nil {
			return fmt.Errorf("unknown provider %q in resilience.rate_limits", name)
		}
	}
	return nil
}

// Set assigns a value by dotted key path, e.g. "providers.brave.api_key" or
// "cache.ttl_seconds". List values (fallback_order) take comma-separated
// input. Unknown keys are rejected.
func (c *Config) Set(key, value string) error {
	root, err := c.toMap()
	if err != nil {
		return err
	}

	parts := strings.Split(key, ".")
	node := root
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown config key %q", key)
		}
		node = child
	}

	leaf := parts[len(parts)-1]
	current, ok := node[leaf]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if _, isMap := current.(map[string]any); isMap {
		return fmt.Errorf("%q is a section, not a value", key)
	}
	node[leaf] = coerceValue(current, value)

	fresh, err := fromMap(root)
	if err != nil {
		return fmt.Errorf("invalid value for %q: %w", key, err)
	}
	if err := fresh.Validate(); err != nil {
		return err
	}
	*c = *fresh
	return nil
}

// Get returns the raw value at a dotted key path.
func (c *Config) Get(key string) (string, error) {
	root, err := c.toMap()
	if err != nil {
		return "", err
	}

	var node any = map[string]any(root)
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", fmt.Errorf("unknown config key %q", key)
		}
		node, ok = m[part]
		if !ok {
			return "", fmt.Errorf("unknown config key %q", key)
		}
	}
	if _, isMap := node.(map[string]any); isMap {
		return "", fmt.Errorf("%q is a section, not a value", key)
	}
	return flatValue(node), nil
}

// List returns every leaf key/value pair, sorted by key, with API keys
// masked for display.
func (c *Config) List() ([][2]string, error) {
	root, err := c.toMap()
	if err != nil {
		return nil, err
	}

	var pairs [][2]string
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for key, value := range node {
			full := key
			if prefix != "" {
				full = prefix + "." + key
			}
			if child, ok := value.(map[string]any); ok {
				walk(full, child)
				continue
			}
			display := flatValue(value)
			if strings.HasSuffix(full, "api_key") {
				display = MaskKey(display)
			}
			pairs = append(pairs, [2]string{full, display})
		}
	}
	walk("", root)

	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs, nil
}

// MaskKey hides the middle of an API key for display. Short keys are fully
// masked.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func (c *Config) toMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("remarshal config: %w", err)
	}
	return root, nil
}

func fromMap(root map[string]any) (*Config, error) {
	data, err := yaml.Marshal(root)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// coerceValue parses the string input into the type the current value has.
func coerceValue(current any, value string) any {
	switch current.(type) {
	case bool:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case int, int64, uint32, float64:
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	case []any:
		parts := strings.Split(value, ",")
		list := make([]any, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		return list
	case nil:
		// Empty lists marshal as null; treat comma input as a list.
		if strings.Contains(value, ",") {
			return coerceValue([]any{}, value)
		}
	}
	return value
}

func flatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}
