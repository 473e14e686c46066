package cache

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultStaleWindow is how long past expiry an entry remains servable
// when stale-while-revalidate is enabled.
const DefaultStaleWindow = 1 * time.Minute

// ManagerConfig holds the cache manager configuration.
type ManagerConfig struct {
	// MaxSize is the maximum number of entries (default 100).
	MaxSize int

	// DefaultTTL applies to entries set with TTLDefault (default 5m).
	DefaultTTL time.Duration

	// StaleWhileRevalidate keeps expired entries servable for
	// StaleWindow. A stale hit signals the caller to refresh in the
	// background.
	StaleWhileRevalidate bool

	// StaleWindow is the staleness window (default 1m). Only used when
	// StaleWhileRevalidate is set.
	StaleWindow time.Duration

	// Now overrides the time source (for tests).
	Now func() time.Time
}

// DefaultManagerConfig returns a safe default configuration with
// stale-while-revalidate enabled.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxSize:              DefaultMaxSize,
		DefaultTTL:           DefaultTTL,
		StaleWhileRevalidate: true,
		StaleWindow:          DefaultStaleWindow,
	}
}

// SetOptions control how an entry is stored.
type SetOptions struct {
	// TTL is the entry TTL: TTLDefault for the configured default,
	// TTLNone for no time-based expiry, otherwise the duration itself.
	TTL time.Duration

	// Priority is the eviction priority (zero value PriorityNormal).
	Priority Priority
}

// Stats is a point-in-time snapshot of manager counters.
type Stats struct {
	Entries   int    `json:"entries"`
	MaxSize   int    `json:"max_size"`
	Hits      uint64 `json:"hits"`
	StaleHits uint64 `json:"stale_hits"`
	Misses    uint64 `json:"misses"`
}

// Manager layers entry states and priority-weighted eviction on top of
// the expiring LRU store. A fresh hit is served as-is; a stale hit is
// served immediately with a signal that the caller should revalidate;
// an expired entry behaves as a miss.
type Manager struct {
	store *Store
	cfg   ManagerConfig
	now   func() time.Time

	hits      atomic.Uint64
	staleHits atomic.Uint64
	misses    atomic.Uint64
}

// NewManager creates a cache manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.StaleWindow <= 0 {
		cfg.StaleWindow = DefaultStaleWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	grace := time.Duration(0)
	if cfg.StaleWhileRevalidate {
		grace = cfg.StaleWindow
	}

	m := &Manager{cfg: cfg, now: now}
	m.store = NewStore(StoreConfig{
		MaxSize:    cfg.MaxSize,
		DefaultTTL: cfg.DefaultTTL,
		Grace:      grace,
		Less:       priorityLess,
		Now:        now,
	})
	return m
}

// priorityLess evicts lower priority entries first; within equal
// priority, least recently used first.
func priorityLess(a, b *Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

// Get returns the cached value and its state. A StateStale result
// means the value is servable but the caller should trigger a
// background refresh. Expired or absent entries report ok=false.
func (m *Manager) Get(key string) (any, EntryState, bool) {
	e, ok := m.store.GetEntry(key)
	if !ok {
		m.misses.Add(1)
		cacheMisses.Inc()
		return nil, StateExpired, false
	}

	staleWindow := time.Duration(0)
	if m.cfg.StaleWhileRevalidate {
		staleWindow = m.cfg.StaleWindow
	}
	state := e.State(m.now(), staleWindow)
	if state == StateExpired {
		// Grace keeps the sweep from removing stale entries, so an
		// exactly-expired entry can still surface here.
		m.store.Delete(key)
		m.misses.Add(1)
		cacheMisses.Inc()
		return nil, StateExpired, false
	}

	if state == StateStale {
		m.staleHits.Add(1)
	} else {
		m.hits.Add(1)
	}
	cacheHits.WithLabelValues(string(state)).Inc()
	return e.Value, state, true
}

// Set stores value under key with the given options.
func (m *Manager) Set(key string, value any, opts SetOptions) {
	m.store.SetWithPriority(key, value, opts.TTL, opts.Priority)
}

// Delete removes the entry stored under key.
func (m *Manager) Delete(key string) bool {
	return m.store.Delete(key)
}

// InvalidateByPattern deletes every key matching the pattern and
// returns the number removed.
func (m *Manager) InvalidateByPattern(re *regexp.Regexp) int {
	count := 0
	for _, key := range m.store.Keys() {
		if re.MatchString(key) {
			if m.store.Delete(key) {
				count++
			}
		}
	}
	cacheInvalidations.WithLabelValues("pattern").Add(float64(count))
	return count
}

// InvalidateByPrefix deletes every key sharing the prefix and returns
// the number removed.
func (m *Manager) InvalidateByPrefix(prefix string) int {
	count := 0
	for _, key := range m.store.Keys() {
		if strings.HasPrefix(key, prefix) {
			if m.store.Delete(key) {
				count++
			}
		}
	}
	cacheInvalidations.WithLabelValues("prefix").Add(float64(count))
	return count
}

// Clear removes all entries.
func (m *Manager) Clear() {
	m.store.Clear()
	cacheInvalidations.WithLabelValues("all").Inc()
}

// Keys returns the live keys after an expiry sweep.
func (m *Manager) Keys() []string {
	return m.store.Keys()
}

// Len returns the number of live entries.
func (m *Manager) Len() int {
	return m.store.Len()
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Entries:   m.store.Len(),
		MaxSize:   m.cfg.MaxSize,
		Hits:      m.hits.Load(),
		StaleHits: m.staleHits.Load(),
		Misses:    m.misses.Load(),
	}
}
