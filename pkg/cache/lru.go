package cache

import (
	"sync"
	"time"
)

const (
	// DefaultMaxSize bounds the entry count when none is configured.
	// The full-map expiry sweep is O(n) per operation, which is only
	// acceptable because the cache stays small.
	DefaultMaxSize = 100

	// DefaultTTL is the fallback TTL when none is configured.
	DefaultTTL = 5 * time.Minute

	// TTLDefault selects the store's configured default TTL.
	TTLDefault time.Duration = 0

	// TTLNone marks an entry that never expires by time.
	TTLNone time.Duration = -1
)

// EvictFunc reports whether entry a should be evicted before entry b
// when the store is over capacity.
type EvictFunc func(a, b *Entry) bool

// lruLess is the default eviction order: least recently used first.
func lruLess(a, b *Entry) bool {
	return a.seq < b.seq
}

// StoreConfig holds the expiring LRU store configuration.
type StoreConfig struct {
	// MaxSize is the maximum number of entries (default 100).
	MaxSize int

	// DefaultTTL applies to entries set with TTLDefault (default 5m).
	// TTLNone disables time-based expiry for the default.
	DefaultTTL time.Duration

	// Grace keeps entries past their expiry for this long before the
	// sweep removes them. The manager uses it as the staleness window;
	// plain store users leave it zero for strict TTL enforcement.
	Grace time.Duration

	// Less overrides the eviction order (default: pure LRU).
	Less EvictFunc

	// Now overrides the time source (for tests).
	Now func() time.Time
}

// DefaultStoreConfig returns a safe default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxSize:    DefaultMaxSize,
		DefaultTTL: DefaultTTL,
	}
}

// Store is a bounded key/value cache with per-entry TTL and LRU
// eviction. Every public operation first sweeps expired entries from
// the whole map, so reads never observe values past their TTL.
type Store struct {
	mu      sync.Mutex
	cfg     StoreConfig
	entries map[string]*Entry
	seq     uint64
	now     func() time.Time
	less    EvictFunc
}

// NewStore creates an expiring LRU store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	less := cfg.Less
	if less == nil {
		less = lruLess
	}
	return &Store{
		cfg:     cfg,
		entries: make(map[string]*Entry),
		now:     now,
		less:    less,
	}
}

// Get returns the value stored under key, promoting it to most
// recently used. Expired entries are swept before the lookup, so a
// key past its TTL reports a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	s.touch(e)
	return e.Value, true
}

// GetEntry returns a copy of the entry stored under key, promoting it
// to most recently used. The manager uses this to inspect expiry and
// priority; the copy keeps callers from mutating store state.
func (s *Store) GetEntry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	s.touch(e)
	return *e, true
}

// Set stores value under key with the given TTL (TTLDefault for the
// configured default, TTLNone for no time-based expiry) and enforces
// the capacity bound afterwards.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.SetWithPriority(key, value, ttl, PriorityNormal)
}

// SetWithPriority is Set with an explicit eviction priority tag.
func (s *Store) SetWithPriority(key string, value any, ttl time.Duration, prio Priority) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()

	now := s.now()
	e := &Entry{
		Value:    value,
		Priority: prio,
		StoredAt: now,
	}
	switch {
	case ttl == TTLDefault:
		if s.cfg.DefaultTTL != TTLNone {
			e.Expires = now.Add(s.cfg.DefaultTTL)
		}
	case ttl > 0:
		e.Expires = now.Add(ttl)
	}
	s.entries[key] = e
	s.touch(e)

	for len(s.entries) > s.cfg.MaxSize {
		s.evictOne()
	}
	cacheEntries.Set(float64(len(s.entries)))
}

// Delete removes the entry stored under key.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	cacheEntries.Set(float64(len(s.entries)))
	return true
}

// Has reports whether key holds a live entry.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	cacheEntries.Set(0)
}

// Keys returns the live keys after an expiry sweep, in no particular
// order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of live entries after an expiry sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	return len(s.entries)
}

// touch promotes the entry to most recently used.
func (s *Store) touch(e *Entry) {
	s.seq++
	e.seq = s.seq
}

// sweep removes every entry whose expiry (plus grace) has passed.
// Callers must hold the lock.
func (s *Store) sweep() {
	now := s.now()
	for k, e := range s.entries {
		if e.NeverExpires() {
			continue
		}
		deadline := e.Expires.Add(s.cfg.Grace)
		if !now.Before(deadline) {
			delete(s.entries, k)
			cacheEvictions.WithLabelValues("expired").Inc()
		}
	}
	cacheEntries.Set(float64(len(s.entries)))
}

// evictOne removes the entry the eviction order ranks first. Callers
// must hold the lock and have at least one entry.
func (s *Store) evictOne() {
	var victimKey string
	var victim *Entry
	for k, e := range s.entries {
		if victim == nil || s.less(e, victim) {
			victimKey, victim = k, e
		}
	}
	delete(s.entries, victimKey)
	cacheEvictions.WithLabelValues("capacity").Inc()
}
