package client

import (
	"net/http"
	"net/url"
	"time"

	"github.com/nexusmkt/apiclient/pkg/cache"
)

// CacheOptions tunes caching for a single request. The nil pointer in
// RequestOptions means "use the client defaults".
type CacheOptions struct {
	// Disabled turns caching off for this request.
	Disabled bool

	// TTL overrides the default entry TTL. cache.TTLNone disables
	// time-based expiry; zero keeps the configured default.
	TTL time.Duration

	// Priority tags the cached entry for eviction ordering.
	Priority cache.Priority

	// ForceRefresh bypasses the cached entry; the fresh response is
	// still stored.
	ForceRefresh bool

	// Tags associate the entry with invalidation groups.
	Tags []string
}

// RetryOptions overrides the client retry policy for one request.
type RetryOptions struct {
	// Disabled turns retries off entirely.
	Disabled bool

	// MaxRetries overrides the retry count when > 0.
	MaxRetries int

	// RetryDelay overrides the base backoff delay when > 0.
	RetryDelay time.Duration

	// StatusCodes overrides the retryable status list when non-empty.
	StatusCodes []int
}

// RequestOptions enumerates every per-request knob the client
// recognizes. There is deliberately no free-form options map: an
// option either exists here with documented behavior or it does not
// exist at all.
type RequestOptions struct {
	// Cache tunes caching; nil uses the client defaults.
	Cache *CacheOptions

	// Retry overrides the retry policy; nil uses the client defaults.
	Retry *RetryOptions

	// Priority is a shorthand for Cache.Priority when Cache is nil.
	Priority cache.Priority

	// Background marks an internal stale-while-revalidate refresh.
	// Background requests never trigger further refreshes and their
	// failures are logged, not surfaced.
	Background bool

	// CacheKey overrides the derived cache key.
	CacheKey string

	// Headers are merged over the client default headers.
	Headers http.Header

	// Params are the query parameters.
	Params url.Values
}

// effectivePriority resolves the entry priority from the two places it
// can be set.
func (o *RequestOptions) effectivePriority() cache.Priority {
	if o.Cache != nil && o.Cache.Priority != cache.PriorityNormal {
		return o.Cache.Priority
	}
	return o.Priority
}
