package apicache

import (
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexusmkt/apiclient/pkg/cache"
)

// CachedResponse is the payload the adapter stores per cache entry.
type CachedResponse struct {
	// Body is the raw response body.
	Body []byte `json:"body"`

	// Status is the HTTP status code of the cached response.
	Status int `json:"status"`

	// StatusText is the HTTP status text.
	StatusText string `json:"status_text"`

	// Header is the response header set.
	Header http.Header `json:"header"`

	// CachedAt is when the response was stored.
	CachedAt time.Time `json:"cached_at"`
}

// Request carries the request attributes the adapter needs for key
// derivation and cacheability decisions.
type Request struct {
	Method string
	URL    string
	Params url.Values
	Header http.Header

	// CacheKey overrides the derived key when non-empty.
	CacheKey string

	// Disabled turns caching off for this request.
	Disabled bool

	// ForceRefresh bypasses the cached entry (the response is still
	// stored on success).
	ForceRefresh bool

	// TTL overrides the default entry TTL (cache.TTLDefault keeps the
	// configured default, cache.TTLNone disables time-based expiry).
	TTL time.Duration

	// Priority tags the entry for eviction ordering.
	Priority cache.Priority

	// Tags associate the entry with invalidation groups.
	Tags []string
}

// Config holds the adapter configuration.
type Config struct {
	// Enabled turns response caching on (default true via
	// DefaultConfig).
	Enabled bool

	// CacheableStatuses is the response status allow-list. Defaults to
	// the 2xx range registered by IANA plus 226 IM Used.
	CacheableStatuses []int
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		CacheableStatuses: []int{
			http.StatusOK, http.StatusCreated, http.StatusAccepted,
			http.StatusNonAuthoritativeInfo, http.StatusNoContent,
			http.StatusResetContent, http.StatusPartialContent,
			http.StatusIMUsed,
		},
	}
}

// Adapter decides what to cache and delegates storage to the manager.
// Cache-internal failures degrade to a miss; they never surface to the
// request path.
type Adapter struct {
	manager *cache.Manager
	cfg     Config
	logger  zerolog.Logger

	mu   sync.Mutex
	tags map[string]map[string]struct{} // tag -> keys
}

// NewAdapter creates an adapter over the given cache manager.
func NewAdapter(manager *cache.Manager, cfg Config, logger zerolog.Logger) *Adapter {
	if len(cfg.CacheableStatuses) == 0 {
		cfg.CacheableStatuses = DefaultConfig().CacheableStatuses
	}
	return &Adapter{
		manager: manager,
		cfg:     cfg,
		logger:  logger,
		tags:    make(map[string]map[string]struct{}),
	}
}

// GenerateCacheKey derives the cache key for a request, honoring an
// explicit override.
func (a *Adapter) GenerateCacheKey(r Request) string {
	if r.CacheKey != "" {
		return r.CacheKey
	}
	return Key{Method: r.Method, URL: r.URL, Params: r.Params, Header: r.Header}.String()
}

// IsCacheable reports whether the request may be served from cache.
// Only GET requests qualify, and neither a disabled cache nor a forced
// refresh is served from cache.
func (a *Adapter) IsCacheable(r Request) bool {
	if !a.cfg.Enabled || r.Disabled || r.ForceRefresh {
		return false
	}
	return r.Method == http.MethodGet || r.Method == ""
}

// IsResponseCacheable reports whether a response status may be stored.
func (a *Adapter) IsResponseCacheable(r Request, status int) bool {
	if !a.cfg.Enabled || r.Disabled {
		return false
	}
	for _, s := range a.cfg.CacheableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// GetCachedResponse looks up the cached response for a request. A
// stale state means the caller should revalidate in the background.
func (a *Adapter) GetCachedResponse(r Request) (*CachedResponse, cache.EntryState, bool) {
	key := a.GenerateCacheKey(r)
	value, state, ok := a.manager.Get(key)
	if !ok {
		return nil, state, false
	}
	resp, ok := value.(*CachedResponse)
	if !ok {
		// Foreign value under our key; treat as a miss.
		a.logger.Warn().Str("key", key).Msg("Unexpected cache value type, dropping entry")
		a.manager.Delete(key)
		return nil, cache.StateExpired, false
	}
	return resp, state, true
}

// CacheResponse stores a response if its status is cacheable. Storage
// problems are logged and swallowed: a caching failure must never fail
// the request that produced the response.
func (a *Adapter) CacheResponse(r Request, resp *CachedResponse) {
	if resp == nil || !a.IsResponseCacheable(r, resp.Status) {
		return
	}
	key := a.GenerateCacheKey(r)
	a.manager.Set(key, resp, cache.SetOptions{TTL: r.TTL, Priority: r.Priority})
	a.indexTags(key, r.Tags)

	a.logger.Debug().
		Str("key", key).
		Int("status", resp.Status).
		Int("bytes", len(resp.Body)).
		Msg("Cached response")
}

// indexTags registers the key under each tag for InvalidateByTag.
func (a *Adapter) indexTags(key string, tags []string) {
	if len(tags) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, tag := range tags {
		keys, ok := a.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			a.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// InvalidateByURL deletes every cached entry whose key matches the
// pattern and returns the number removed.
func (a *Adapter) InvalidateByURL(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}
	return a.manager.InvalidateByPattern(re), nil
}

// InvalidateByPrefix deletes every cached entry whose key shares the
// prefix and returns the number removed.
func (a *Adapter) InvalidateByPrefix(prefix string) int {
	return a.manager.InvalidateByPrefix(prefix)
}

// InvalidateByTag deletes every entry registered under the tag and
// returns the number removed.
func (a *Adapter) InvalidateByTag(tag string) int {
	a.mu.Lock()
	keys := a.tags[tag]
	delete(a.tags, tag)
	a.mu.Unlock()

	count := 0
	for key := range keys {
		if a.manager.Delete(key) {
			count++
		}
	}
	return count
}

// InvalidateAll clears the cache and the tag index.
func (a *Adapter) InvalidateAll() {
	a.mu.Lock()
	a.tags = make(map[string]map[string]struct{})
	a.mu.Unlock()
	a.manager.Clear()
}

// Stats returns the underlying manager counters.
func (a *Adapter) Stats() cache.Stats {
	return a.manager.Stats()
}
