// Package cache provides the in-memory caching layer for the API client.
//
// Two building blocks are exposed:
//
// Store is a bounded expiring LRU cache. Every operation lazily sweeps
// expired entries from the whole map before doing its work, so a read
// never observes a value past its TTL. When the capacity bound is
// exceeded the least recently used entry is evicted first.
//
// Manager layers entry states on top of the store. An entry is fresh
// while inside its TTL, stale between expiry and the staleness window
// (when stale-while-revalidate is enabled), and expired afterwards.
// Stale entries are served immediately with a signal that the caller
// should refresh them in the background. Eviction at capacity compares
// (priority, recency): lower priority entries go first, least recently
// used breaks ties.
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.DefaultManagerConfig())
//
//	manager.Set("get:/projects", body, cache.SetOptions{
//		TTL:      30 * time.Second,
//		Priority: cache.PriorityHigh,
//	})
//
//	value, state, ok := manager.Get("get:/projects")
//	if ok && state == cache.StateStale {
//		// Serve value now, refresh in the background.
//	}
//
// # Invalidation
//
//	n := manager.InvalidateByPrefix("get:/projects")
//	n = manager.InvalidateByPattern(regexp.MustCompile(`/projects/\d+`))
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - apiclient_cache_hits_total{state} - Hits by entry state
//   - apiclient_cache_misses_total - Misses
//   - apiclient_cache_evictions_total{cause} - Evictions by cause
//   - apiclient_cache_invalidations_total{method} - Explicit invalidations
//   - apiclient_cache_entries - Current live entries
//
// # Design Notes
//
// The full-map sweep is O(n) per operation. This is a deliberate
// simplicity trade-off that holds only while MaxSize stays small
// (around 100 entries); a larger cache would want an expiry heap or a
// timer-driven sweep instead.
//
// The cache is process-local and best effort. Nothing is persisted and
// there is no cross-process coordination.
package cache
