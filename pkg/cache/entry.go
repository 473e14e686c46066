// Package cache provides the in-memory caching primitives for the API
// client: a bounded expiring LRU store and a stale-while-revalidate
// manager with priority-weighted eviction.
package cache

import (
	"time"
)

// Priority influences eviction order when the cache is at capacity.
// Lower priority entries are evicted before higher priority ones at
// equal recency.
type Priority int

const (
	// PriorityLow marks entries that may be evicted first.
	PriorityLow Priority = -1

	// PriorityNormal is the default (zero value) priority.
	PriorityNormal Priority = 0

	// PriorityHigh marks entries that are evicted last.
	PriorityHigh Priority = 1
)

// String returns the priority name for logging.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// EntryState describes the freshness of a cached entry.
type EntryState string

const (
	// StateFresh means the entry is within its TTL.
	StateFresh EntryState = "fresh"

	// StateStale means the entry is past its TTL but within the
	// staleness window. Stale entries are servable; the caller should
	// trigger a background refresh.
	StateStale EntryState = "stale"

	// StateExpired means the entry is past its TTL and staleness
	// window and behaves as a miss.
	StateExpired EntryState = "expired"
)

// Entry is a single cached value with its expiry and eviction metadata.
type Entry struct {
	// Value is the cached payload, opaque to the cache.
	Value any

	// Expires is the absolute expiration instant. The zero time means
	// the entry never expires by time, only by LRU pressure.
	Expires time.Time

	// Priority is the eviction priority tag.
	Priority Priority

	// StoredAt is when the entry was created or last replaced.
	StoredAt time.Time

	// seq is the recency sequence number, bumped on every access.
	// Smaller means less recently used.
	seq uint64
}

// NeverExpires reports whether the entry has no time-based expiry.
func (e *Entry) NeverExpires() bool {
	return e.Expires.IsZero()
}

// State derives the entry state at the given instant. The staleness
// window only applies when stale-while-revalidate is enabled; with a
// zero window an entry goes straight from fresh to expired.
func (e *Entry) State(now time.Time, staleWindow time.Duration) EntryState {
	if e.NeverExpires() || now.Before(e.Expires) {
		return StateFresh
	}
	if staleWindow > 0 && now.Before(e.Expires.Add(staleWindow)) {
		return StateStale
	}
	return StateExpired
}

// TTL returns the time until expiration, or 0 if already expired.
// Entries without expiry report 0.
func (e *Entry) TTL(now time.Time) time.Duration {
	if e.NeverExpires() {
		return 0
	}
	ttl := e.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
