package perf

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// alwaysSample forces every call through the sampling gate.
func alwaysSample() float64 { return 0.0 }

// neverSample forces every call to be dropped.
func neverSample() float64 { return 0.999 }

func newTestMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	if cfg.Rand == nil {
		cfg.Rand = alwaysSample
	}
	return NewMonitor(cfg)
}

func TestTrack_RecordsSamples(t *testing.T) {
	m := newTestMonitor(t, Config{Enabled: true, SampleRate: 1.0})

	m.TrackComponentRender("ProjectList", 12.5)
	m.TrackComponentRender("ProjectList", 8.0)
	m.TrackInteraction("submit-form", 40.0)
	m.TrackResourceLoad("/static/app.js", 120.0)
	m.TrackApiResponse("/projects", 55.0)

	got := m.Metrics()
	if len(got.ComponentRenderTime["ProjectList"]) != 2 {
		t.Errorf("ProjectList samples = %v", got.ComponentRenderTime["ProjectList"])
	}
	if got.ComponentRenderTime["ProjectList"][0] != 12.5 {
		t.Errorf("first sample = %v, want 12.5", got.ComponentRenderTime["ProjectList"][0])
	}
	if len(got.InteractionTime["submit-form"]) != 1 {
		t.Errorf("interaction samples = %v", got.InteractionTime)
	}
	if len(got.ResourceLoadTime["/static/app.js"]) != 1 {
		t.Errorf("resource samples = %v", got.ResourceLoadTime)
	}
	if len(got.ApiResponseTime["/projects"]) != 1 {
		t.Errorf("api samples = %v", got.ApiResponseTime)
	}
}

func TestTrack_Disabled(t *testing.T) {
	m := newTestMonitor(t, Config{Enabled: false, SampleRate: 1.0})

	m.TrackComponentRender("ProjectList", 12.5)
	m.TrackApiResponse("/projects", 55.0)

	got := m.Metrics()
	if got.ComponentRenderTime != nil {
		t.Errorf("disabled monitor created render bucket: %v", got.ComponentRenderTime)
	}
	if got.ApiResponseTime != nil {
		t.Errorf("disabled monitor created api bucket: %v", got.ApiResponseTime)
	}
	if m.PendingBatch() != 0 {
		t.Errorf("disabled monitor batched %d samples", m.PendingBatch())
	}
}

func TestTrack_SamplingGate(t *testing.T) {
	m := newTestMonitor(t, Config{Enabled: true, SampleRate: 0.1, Rand: neverSample})

	for i := 0; i < 100; i++ {
		m.TrackComponentRender("ProjectList", float64(i))
	}

	if got := m.Metrics().ComponentRenderTime; got != nil {
		t.Errorf("samples recorded despite gate: %v", got)
	}
}

func TestTrack_BatchFlush(t *testing.T) {
	var mu sync.Mutex
	var received []Sample
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Samples []Sample `json:"samples"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("invalid report payload: %v", err)
		}
		mu.Lock()
		received = append(received, payload.Samples...)
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	m := newTestMonitor(t, Config{
		Enabled:           true,
		SampleRate:        1.0,
		BatchSize:         3,
		ReportingEndpoint: server.URL,
	})

	m.TrackApiResponse("/projects", 10)
	m.TrackApiResponse("/projects", 20)
	if m.PendingBatch() != 2 {
		t.Errorf("pending = %d before batch full, want 2", m.PendingBatch())
	}

	m.TrackApiResponse("/projects", 30)

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("reports sent = %d, want 1", requests)
	}
	if len(received) != 3 {
		t.Fatalf("samples reported = %d, want 3", len(received))
	}
	if received[0].Kind != KindAPIResponse || received[0].DurationMs != 10 {
		t.Errorf("first sample = %+v", received[0])
	}
	if m.PendingBatch() != 0 {
		t.Errorf("pending = %d after flush, want 0", m.PendingBatch())
	}
}

func TestTrack_NoEndpointNoFlush(t *testing.T) {
	m := newTestMonitor(t, Config{Enabled: true, SampleRate: 1.0, BatchSize: 2})

	m.TrackInteraction("click", 1)
	m.TrackInteraction("click", 2)
	m.TrackInteraction("click", 3)

	// Without an endpoint samples accumulate past the batch size.
	if m.PendingBatch() != 3 {
		t.Errorf("pending = %d, want 3", m.PendingBatch())
	}
}

func TestReport_FailureDropsBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m := newTestMonitor(t, Config{
		Enabled:           true,
		SampleRate:        1.0,
		BatchSize:         2,
		ReportingEndpoint: server.URL,
	})

	m.TrackResourceLoad("/a.js", 1)
	m.TrackResourceLoad("/b.js", 2)

	// The batch is gone even though the endpoint rejected it, and
	// local buckets are untouched.
	if m.PendingBatch() != 0 {
		t.Errorf("pending = %d after failed flush, want 0", m.PendingBatch())
	}
	if len(m.Metrics().ResourceLoadTime) != 2 {
		t.Errorf("local buckets lost: %v", m.Metrics().ResourceLoadTime)
	}
}

func TestResetMetrics(t *testing.T) {
	m := newTestMonitor(t, Config{Enabled: true, SampleRate: 1.0})

	m.TrackComponentRender("ProjectList", 1)
	m.TrackInteraction("click", 2)
	m.ResetMetrics()

	got := m.Metrics()
	if got.ComponentRenderTime != nil || got.InteractionTime != nil {
		t.Errorf("buckets survived reset: %+v", got)
	}
	if m.PendingBatch() != 0 {
		t.Errorf("pending = %d after reset, want 0", m.PendingBatch())
	}
}

func TestMetrics_SnapshotIsolation(t *testing.T) {
	m := newTestMonitor(t, Config{Enabled: true, SampleRate: 1.0})

	m.TrackComponentRender("ProjectList", 1)
	snap := m.Metrics()
	snap.ComponentRenderTime["ProjectList"][0] = 999

	if got := m.Metrics().ComponentRenderTime["ProjectList"][0]; got != 1 {
		t.Errorf("snapshot mutation leaked into monitor: %v", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Error("default config should be enabled")
	}
	if cfg.SampleRate != 0.1 {
		t.Errorf("SampleRate = %v, want 0.1", cfg.SampleRate)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
}
