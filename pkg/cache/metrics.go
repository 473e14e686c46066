package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by entry state (fresh, stale).
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_cache_hits_total",
			Help: "Total number of cache hits by entry state",
		},
		[]string{"state"},
	)

	// cacheMisses tracks cache misses, including expired entries.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apiclient_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// cacheEvictions tracks removed entries by cause.
	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_cache_evictions_total",
			Help: "Total number of cache evictions by cause",
		},
		[]string{"cause"}, // "expired", "capacity"
	)

	// cacheInvalidations tracks explicit invalidations by method.
	cacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_cache_invalidations_total",
			Help: "Total number of entries removed by explicit invalidation",
		},
		[]string{"method"}, // "pattern", "prefix", "tag", "all"
	)

	// cacheEntries tracks the current number of live entries.
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "apiclient_cache_entries",
			Help: "Current number of live cache entries",
		},
	)
)
