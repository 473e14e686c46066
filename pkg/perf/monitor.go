// Package perf provides a sampled performance monitor for render,
// interaction, resource, and API timings. It is an observability side
// channel: samples may be dropped, never blocking or failing the code
// being measured.
package perf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nexusmkt/apiclient/pkg/logging"
)

var (
	perfSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiclient_perf_samples_total",
		Help: "Performance samples recorded by kind",
	}, []string{"kind"})

	perfReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apiclient_perf_reports_total",
		Help: "Performance batch report flushes by outcome",
	}, []string{"outcome"}) // "ok", "dropped"
)

// Sample kinds reported to the metrics endpoint.
const (
	KindComponentRender = "component_render"
	KindInteraction     = "interaction"
	KindResourceLoad    = "resource_load"
	KindAPIResponse     = "api_response"
)

// Config holds the monitor configuration.
type Config struct {
	// Enabled turns sample collection on. When false no bucket is
	// ever created, which is distinguishable from "zero samples".
	Enabled bool

	// SampleRate is the probability a call is recorded (default 0.1).
	SampleRate float64

	// BatchSize is how many samples accumulate before a flush
	// (default 10).
	BatchSize int

	// ReportingEndpoint receives batched samples via POST. Empty
	// disables reporting; samples still accumulate locally.
	ReportingEndpoint string

	// LogToConsole logs flush failures.
	LogToConsole bool

	// Rand overrides the sampling source for deterministic tests
	// (default math/rand.Float64).
	Rand func() float64

	// HTTPClient overrides the reporting transport.
	HTTPClient *http.Client
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		SampleRate: 0.1,
		BatchSize:  10,
	}
}

// Sample is one observed duration.
type Sample struct {
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	DurationMs float64   `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// Metrics is a snapshot of all sample buckets. Each map goes from a
// name or URL to the ordered durations observed for it, in
// milliseconds.
type Metrics struct {
	ComponentRenderTime map[string][]float64 `json:"component_render_time"`
	InteractionTime     map[string][]float64 `json:"interaction_time"`
	ResourceLoadTime    map[string][]float64 `json:"resource_load_time"`
	ApiResponseTime     map[string][]float64 `json:"api_response_time"`
}

// Monitor collects sampled timing measurements and reports them in
// batches. Construct instances explicitly with NewMonitor; there is no
// package-level singleton.
type Monitor struct {
	cfg        Config
	randFloat  func() float64
	httpClient *http.Client
	logger     zerolog.Logger

	mu      sync.Mutex
	buckets map[string]map[string][]float64 // kind -> name -> durations
	batch   []Sample
}

// NewMonitor creates a performance monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 0.1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	randFloat := cfg.Rand
	if randFloat == nil {
		randFloat = rand.Float64
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Monitor{
		cfg:        cfg,
		randFloat:  randFloat,
		httpClient: httpClient,
		logger:     logging.NewLogger("perf-monitor"),
		buckets:    make(map[string]map[string][]float64),
	}
}

// TrackComponentRender records a component render duration.
func (m *Monitor) TrackComponentRender(name string, durationMs float64) {
	m.track(KindComponentRender, name, durationMs)
}

// TrackInteraction records a user interaction duration.
func (m *Monitor) TrackInteraction(name string, durationMs float64) {
	m.track(KindInteraction, name, durationMs)
}

// TrackResourceLoad records a resource load duration.
func (m *Monitor) TrackResourceLoad(url string, durationMs float64) {
	m.track(KindResourceLoad, url, durationMs)
}

// TrackApiResponse records an API response duration.
func (m *Monitor) TrackApiResponse(endpoint string, durationMs float64) {
	m.track(KindAPIResponse, endpoint, durationMs)
}

// track applies the enabled flag and sampling gate, then appends the
// sample to its bucket and the pending batch.
func (m *Monitor) track(kind, name string, durationMs float64) {
	if !m.cfg.Enabled {
		return
	}
	if m.randFloat() >= m.cfg.SampleRate {
		return
	}

	perfSamplesTotal.WithLabelValues(kind).Inc()

	m.mu.Lock()
	bucket, ok := m.buckets[kind]
	if !ok {
		bucket = make(map[string][]float64)
		m.buckets[kind] = bucket
	}
	bucket[name] = append(bucket[name], durationMs)

	m.batch = append(m.batch, Sample{
		Kind:       kind,
		Name:       name,
		DurationMs: durationMs,
		At:         time.Now(),
	})

	var flush []Sample
	if len(m.batch) >= m.cfg.BatchSize && m.cfg.ReportingEndpoint != "" {
		flush = m.batch
		m.batch = nil
	}
	m.mu.Unlock()

	if flush != nil {
		m.report(flush)
	}
}

// report flushes one batch to the reporting endpoint. A failed flush
// drops the batch; metrics loss is acceptable here.
func (m *Monitor) report(batch []Sample) {
	payload, err := json.Marshal(map[string]any{"samples": batch})
	if err != nil {
		m.drop(batch, err)
		return
	}

	resp, err := m.httpClient.Post(m.cfg.ReportingEndpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		m.drop(batch, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.drop(batch, fmt.Errorf("reporting endpoint returned status %d", resp.StatusCode))
		return
	}

	perfReportsTotal.WithLabelValues("ok").Inc()
}

// drop records a failed flush and discards the batch.
func (m *Monitor) drop(batch []Sample, err error) {
	perfReportsTotal.WithLabelValues("dropped").Inc()
	if m.cfg.LogToConsole {
		m.logger.Warn().Err(err).
			Int("samples", len(batch)).
			Msg("Dropping performance report batch")
	}
}

// Metrics returns a deep copy of all sample buckets.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Metrics{
		ComponentRenderTime: copyBucket(m.buckets[KindComponentRender]),
		InteractionTime:     copyBucket(m.buckets[KindInteraction]),
		ResourceLoadTime:    copyBucket(m.buckets[KindResourceLoad]),
		ApiResponseTime:     copyBucket(m.buckets[KindAPIResponse]),
	}
}

// PendingBatch returns the number of samples awaiting a flush.
func (m *Monitor) PendingBatch() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batch)
}

// ResetMetrics clears all buckets and the pending batch.
func (m *Monitor) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[string]map[string][]float64)
	m.batch = nil
}

// copyBucket deep-copies one kind's samples; a nil bucket stays nil so
// "never created" remains observable.
func copyBucket(bucket map[string][]float64) map[string][]float64 {
	if bucket == nil {
		return nil
	}
	out := make(map[string][]float64, len(bucket))
	for name, durations := range bucket {
		out[name] = append([]float64(nil), durations...)
	}
	return out
}
