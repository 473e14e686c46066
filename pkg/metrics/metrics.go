// Package metrics provides the Prometheus metrics reference for the
// API client. All metrics are defined in their respective packages
// (cache, client, perf) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - apiclient_cache_hits_total{state} (Counter): Hits by entry state (fresh, stale)
//   - apiclient_cache_misses_total (Counter): Misses, including expired entries
//   - apiclient_cache_evictions_total{cause} (Counter): Evictions (expired, capacity)
//   - apiclient_cache_invalidations_total{method} (Counter): Explicit invalidations (pattern, prefix, all)
//   - apiclient_cache_entries (Gauge): Current live entries
//
// Request Metrics (pkg/client):
//   - apiclient_requests_total{endpoint, status} (Counter): Requests by endpoint and outcome;
//     status is the HTTP code or one of cache_hit, offline_cache_hit, network_error
//   - apiclient_request_duration_seconds{endpoint} (Histogram): Request duration
//   - apiclient_retries_total (Counter): Retry attempts
//   - apiclient_retry_exhausted_total (Counter): Requests that exhausted retries
//   - apiclient_dedup_shared_total (Counter): GETs served by sharing an in-flight request
//   - apiclient_background_refresh_total{outcome} (Counter): SWR refreshes (ok, error)
//   - apiclient_offline_queued_total (Counter): Requests queued while offline
//   - apiclient_offline_replayed_total{outcome} (Counter): Replays (ok, requeued, dropped)
//   - apiclient_auth_errors_total (Counter): 401 responses observed
//
// Performance Monitor Metrics (pkg/perf):
//   - apiclient_perf_samples_total{kind} (Counter): Samples recorded by kind
//   - apiclient_perf_reports_total{outcome} (Counter): Batch report flushes (ok, dropped)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(apiclient_cache_hits_total[5m])) /
//   (sum(rate(apiclient_cache_hits_total[5m])) + sum(rate(apiclient_cache_misses_total[5m])))
//
//   # Retry Pressure
//   rate(apiclient_retries_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(apiclient_request_duration_seconds_bucket[5m]))
//
//   # Offline Queue Churn
//   rate(apiclient_offline_replayed_total{outcome="requeued"}[5m])
