package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nexusmkt/apiclient/internal/testutil"
)

func TestClient_Offline_GetServedFromCache(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/projects", testutil.MockResponse{StatusCode: 200, Body: `[]`})

	c := newTestClient(t, mock, nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, "/projects", nil); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	c.SetOnline(false)
	resp, err := c.Get(ctx, "/projects", nil)
	if err != nil {
		t.Fatalf("offline Get with cached value failed: %v", err)
	}
	if !resp.Cached {
		t.Error("offline Get not marked cached")
	}
	if n := mock.RequestCount("/projects"); n != 1 {
		t.Errorf("network calls = %d while offline, want 1", n)
	}
}

func TestClient_Offline_UncachedGetQueuedAndFails(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	c := newTestClient(t, mock, nil)
	c.SetOnline(false)

	_, err := c.Get(context.Background(), "/never-seen", nil)
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("error = %v, want ErrOffline", err)
	}
	if n := c.OfflineQueueLen(); n != 1 {
		t.Errorf("queue len = %d, want 1", n)
	}
	if n := mock.TotalRequests(); n != 0 {
		t.Errorf("network calls = %d while offline, want 0", n)
	}
}

func TestClient_Offline_MutationQueuedAndFails(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	c := newTestClient(t, mock, nil)
	c.SetOnline(false)

	_, err := c.Post(context.Background(), "/projects", map[string]string{"name": "x"}, nil)
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("error = %v, want ErrOffline", err)
	}
	if n := c.OfflineQueueLen(); n != 1 {
		t.Errorf("queue len = %d, want 1", n)
	}
}

func TestClient_Offline_ReplayFIFOOrder(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	var mu sync.Mutex
	var order []string
	for _, path := range []string{"/a", "/b", "/c"} {
		path := path
		mock.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			order = append(order, path)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		})
	}

	c := newTestClient(t, mock, nil)
	ctx := context.Background()
	c.SetOnline(false)

	c.Post(ctx, "/a", nil, nil)
	c.Post(ctx, "/b", nil, nil)
	c.Post(ctx, "/c", nil, nil)
	if n := c.OfflineQueueLen(); n != 3 {
		t.Fatalf("queue len = %d, want 3", n)
	}

	c.SetOnline(true)
	waitFor(t, 5*time.Second, func() bool { return c.OfflineQueueLen() == 0 })

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "/a" || order[1] != "/b" || order[2] != "/c" {
		t.Errorf("replay order = %v, want [/a /b /c]", order)
	}
}

func TestClient_Offline_FailedReplayRequeuedAtBack(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/bad", testutil.MockResponse{StatusCode: 500, Body: `{}`})
	mock.SetResponse("/good", testutil.MockResponse{StatusCode: 200, Body: `{}`})

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Retry = RetryPolicy{MaxRetries: 0, RetryDelay: time.Millisecond}
	})
	ctx := context.Background()
	c.SetOnline(false)

	c.Post(ctx, "/bad", nil, nil)
	c.Post(ctx, "/good", nil, nil)

	c.SetOnline(true)
	waitFor(t, 5*time.Second, func() bool { return mock.RequestCount("/good") == 1 })
	waitFor(t, 5*time.Second, func() bool { return c.OfflineQueueLen() == 1 })

	pending := c.PendingReplays()
	if len(pending) != 1 || pending[0].URL != "/bad" {
		t.Fatalf("pending = %+v, want the failed /bad request", pending)
	}
	if pending[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", pending[0].Attempts)
	}
}

func TestClient_Offline_MaxReplayAttemptsDrops(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/bad", testutil.MockResponse{StatusCode: 500, Body: `{}`})

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Retry = RetryPolicy{MaxRetries: 0, RetryDelay: time.Millisecond}
		cfg.MaxReplayAttempts = 1
	})
	ctx := context.Background()
	c.SetOnline(false)

	c.Post(ctx, "/bad", nil, nil)
	c.SetOnline(true)

	waitFor(t, 5*time.Second, func() bool { return c.OfflineQueueLen() == 0 })
	if n := mock.RequestCount("/bad"); n != 1 {
		t.Errorf("replay attempts = %d, want 1 before drop", n)
	}
}

func TestClient_Offline_ReplayedGetWarmsCache(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/projects", testutil.MockResponse{StatusCode: 200, Body: `[]`})

	c := newTestClient(t, mock, nil)
	ctx := context.Background()
	c.SetOnline(false)

	if _, err := c.Get(ctx, "/projects", nil); !errors.Is(err, ErrOffline) {
		t.Fatalf("offline Get error = %v, want ErrOffline", err)
	}

	c.SetOnline(true)
	waitFor(t, 5*time.Second, func() bool { return c.OfflineQueueLen() == 0 })

	resp, err := c.Get(ctx, "/projects", nil)
	if err != nil {
		t.Fatalf("Get after replay failed: %v", err)
	}
	if !resp.Cached {
		t.Error("replayed GET did not warm the cache")
	}
}

func TestClient_OfflineSupportDisabled(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/x", testutil.MockResponse{StatusCode: 200, Body: `{}`})

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.OfflineSupport = false
	})
	c.SetOnline(false)

	// Without offline support the probe is ignored and the request
	// goes to the network.
	resp, err := c.Get(context.Background(), "/x", nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
}

func TestManualProbe(t *testing.T) {
	p := NewManualProbe()
	if !p.Online() {
		t.Error("new probe should start online")
	}
	if changed := p.set(false); !changed {
		t.Error("set(false) should report a change")
	}
	if changed := p.set(false); changed {
		t.Error("repeated set(false) should not report a change")
	}
	if p.Online() {
		t.Error("probe should be offline")
	}
}
