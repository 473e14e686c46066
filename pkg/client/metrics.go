package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiclient_requests_total",
		Help: "Total requests by endpoint and outcome",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apiclient_request_duration_seconds",
		Help:    "Request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apiclient_retries_total",
		Help: "Total number of retry attempts",
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apiclient_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})

	dedupSharedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apiclient_dedup_shared_total",
		Help: "Total GET calls served by sharing an in-flight request",
	})

	backgroundRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiclient_background_refresh_total",
		Help: "Total stale-while-revalidate background refreshes by outcome",
	}, []string{"outcome"}) // "ok", "error"

	offlineQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apiclient_offline_queued_total",
		Help: "Total requests queued while offline",
	})

	offlineReplayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiclient_offline_replayed_total",
		Help: "Total offline queue replays by outcome",
	}, []string{"outcome"}) // "ok", "requeued", "dropped"

	authErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apiclient_auth_errors_total",
		Help: "Total 401 responses observed",
	})
)
