package usecase

import (
	"strings"
	"sync"
	"time"

	"websearch/internal/domain"
)

// CacheConfig controls the result cache.
type CacheConfig struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

// CacheStats is a read-only snapshot of the cache state.
type CacheStats struct {
	Entries    int  `json:"entries"`
	MaxEntries int  `json:"max_entries"`
	TTLSeconds int  `json:"ttl_seconds"`
	Enabled    bool `json:"enabled"`
}

type cacheEntry struct {
	results   []domain.SearchResult
	provider  string
	ttl       time.Duration
	createdAt time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// ResultCache is an in-memory, time-bounded cache of search results.
// It is advisory: a best-effort accelerator, never a source of truth.
// Safe for concurrent use; readers do not block each other.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	cfg     CacheConfig

	now func() time.Time // swapped in tests
}

// NewResultCache creates a cache with the given settings.
func NewResultCache(cfg CacheConfig) *ResultCache {
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

// cacheKey derives the lookup key: case-folded query, scoped to a provider
// when one is named. Provider-scoped and unscoped entries never collide.
func cacheKey(query, provider string) string {
	key := strings.ToLower(query)
	if provider != "" {
		key = provider + ":" + key
	}
	return key
}

// Get returns cached results for a query, with the provider that produced
// them. Expired entries count as misses but are not removed here; eviction
// runs only on the write path.
func (c *ResultCache) Get(query, provider string) ([]domain.SearchResult, string, bool) {
	if !c.cfg.Enabled {
		return nil, "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(query, provider)]
	if !ok || entry.expired(c.now()) {
		return nil, "", false
	}
	return domain.CloneResults(entry.results), entry.provider, true
}

// Set stores results under the key scoped to the provider that produced
// them. A later unscoped Get does not see this entry; only a Get naming the
// same provider does. Runs an eviction pass first when the cache is at
// capacity.
func (c *ResultCache) Set(query, provider string, results []domain.SearchResult) {
	if !c.cfg.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictLocked()
	}
	c.entries[cacheKey(query, provider)] = cacheEntry{
		results:   domain.CloneResults(results),
		provider:  provider,
		ttl:       c.cfg.TTL,
		createdAt: c.now(),
	}
}

// Clear empties the cache. Always succeeds.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Stats returns a snapshot of the cache state.
func (c *ResultCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries:    len(c.entries),
		MaxEntries: c.cfg.MaxEntries,
		TTLSeconds: int(c.cfg.TTL / time.Second),
		Enabled:    c.cfg.Enabled,
	}
}

// evictLocked reclaims space in two steps: drop everything already expired,
// then, if still at capacity, drop arbitrary entries until below the limit.
// No recency ordering is tracked; map iteration order is good enough for an
// advisory cache. Caller must hold the write lock.
func (c *ResultCache) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
		}
	}
	for key := range c.entries {
		if len(c.entries) < c.cfg.MaxEntries {
			break
		}
		delete(c.entries, key)
	}
}
