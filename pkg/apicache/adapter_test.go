package apicache

import (
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexusmkt/apiclient/pkg/cache"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	manager := cache.NewManager(cache.DefaultManagerConfig())
	return NewAdapter(manager, DefaultConfig(), zerolog.Nop())
}

func TestAdapter_IsCacheable(t *testing.T) {
	a := newTestAdapter(t)

	tests := []struct {
		name string
		req  Request
		want bool
	}{
		{"plain GET", Request{Method: http.MethodGet, URL: "/x"}, true},
		{"POST", Request{Method: http.MethodPost, URL: "/x"}, false},
		{"PUT", Request{Method: http.MethodPut, URL: "/x"}, false},
		{"DELETE", Request{Method: http.MethodDelete, URL: "/x"}, false},
		{"disabled", Request{Method: http.MethodGet, Disabled: true}, false},
		{"force refresh", Request{Method: http.MethodGet, ForceRefresh: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.IsCacheable(tt.req); got != tt.want {
				t.Errorf("IsCacheable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdapter_IsResponseCacheable(t *testing.T) {
	a := newTestAdapter(t)
	req := Request{Method: http.MethodGet, URL: "/x"}

	for _, status := range []int{200, 201, 204, 226} {
		if !a.IsResponseCacheable(req, status) {
			t.Errorf("status %d should be cacheable", status)
		}
	}
	for _, status := range []int{301, 304, 400, 404, 500} {
		if a.IsResponseCacheable(req, status) {
			t.Errorf("status %d should not be cacheable", status)
		}
	}
}

func TestAdapter_IsResponseCacheable_Disabled(t *testing.T) {
	manager := cache.NewManager(cache.DefaultManagerConfig())
	a := NewAdapter(manager, Config{Enabled: false}, zerolog.Nop())

	if a.IsResponseCacheable(Request{Method: http.MethodGet}, 200) {
		t.Error("disabled adapter reported response cacheable")
	}
}

func TestAdapter_CacheAndGetRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	req := Request{Method: http.MethodGet, URL: "/projects"}

	a.CacheResponse(req, &CachedResponse{
		Body:       []byte(`[{"id":1}]`),
		Status:     200,
		StatusText: "200 OK",
		Header:     http.Header{"Content-Type": {"application/json"}},
		CachedAt:   time.Now(),
	})

	got, state, ok := a.GetCachedResponse(req)
	if !ok {
		t.Fatal("GetCachedResponse missed immediately after CacheResponse")
	}
	if state != cache.StateFresh {
		t.Errorf("state = %s, want fresh", state)
	}
	if string(got.Body) != `[{"id":1}]` {
		t.Errorf("Body = %s", got.Body)
	}
	if got.Status != 200 {
		t.Errorf("Status = %d, want 200", got.Status)
	}
}

func TestAdapter_NonCacheableStatusNotStored(t *testing.T) {
	a := newTestAdapter(t)
	req := Request{Method: http.MethodGet, URL: "/projects"}

	a.CacheResponse(req, &CachedResponse{Status: 500, Body: []byte("boom")})

	if _, _, ok := a.GetCachedResponse(req); ok {
		t.Error("500 response was stored in cache")
	}
}

func TestAdapter_CacheKeyOverride(t *testing.T) {
	a := newTestAdapter(t)

	a.CacheResponse(Request{Method: http.MethodGet, URL: "/projects", CacheKey: "custom"},
		&CachedResponse{Status: 200, Body: []byte("x")})

	if _, _, ok := a.GetCachedResponse(Request{Method: http.MethodGet, CacheKey: "custom"}); !ok {
		t.Error("explicit cache key not honored")
	}
	if _, _, ok := a.GetCachedResponse(Request{Method: http.MethodGet, URL: "/projects"}); ok {
		t.Error("derived key stored despite explicit override")
	}
}

func TestAdapter_InvalidateByPrefix(t *testing.T) {
	a := newTestAdapter(t)

	a.CacheResponse(Request{Method: http.MethodGet, URL: "/projects"},
		&CachedResponse{Status: 200})
	a.CacheResponse(Request{Method: http.MethodGet, URL: "/projects/1"},
		&CachedResponse{Status: 200})
	a.CacheResponse(Request{Method: http.MethodGet, URL: "/contacts"},
		&CachedResponse{Status: 200})

	n := a.InvalidateByPrefix(PrefixForURL("/projects"))
	if n != 2 {
		t.Errorf("InvalidateByPrefix = %d, want 2", n)
	}
	if _, _, ok := a.GetCachedResponse(Request{Method: http.MethodGet, URL: "/contacts"}); !ok {
		t.Error("unrelated entry was invalidated")
	}
}

func TestAdapter_InvalidateByURL(t *testing.T) {
	a := newTestAdapter(t)

	a.CacheResponse(Request{Method: http.MethodGet, URL: "/projects/1"},
		&CachedResponse{Status: 200})
	a.CacheResponse(Request{Method: http.MethodGet, URL: "/projects/2"},
		&CachedResponse{Status: 200})

	n, err := a.InvalidateByURL(`/projects/\d+`)
	if err != nil {
		t.Fatalf("InvalidateByURL: %v", err)
	}
	if n != 2 {
		t.Errorf("InvalidateByURL = %d, want 2", n)
	}

	if _, err := a.InvalidateByURL(`[invalid`); err == nil {
		t.Error("invalid pattern did not error")
	}
}

func TestAdapter_InvalidateByTag(t *testing.T) {
	a := newTestAdapter(t)

	a.CacheResponse(Request{Method: http.MethodGet, URL: "/projects", Tags: []string{"projects"}},
		&CachedResponse{Status: 200})
	a.CacheResponse(Request{Method: http.MethodGet, URL: "/projects/1", Tags: []string{"projects", "detail"}},
		&CachedResponse{Status: 200})
	a.CacheResponse(Request{Method: http.MethodGet, URL: "/contacts"},
		&CachedResponse{Status: 200})

	n := a.InvalidateByTag("projects")
	if n != 2 {
		t.Errorf("InvalidateByTag = %d, want 2", n)
	}
	if n := a.InvalidateByTag("projects"); n != 0 {
		t.Errorf("second InvalidateByTag = %d, want 0", n)
	}
	if _, _, ok := a.GetCachedResponse(Request{Method: http.MethodGet, URL: "/contacts"}); !ok {
		t.Error("untagged entry was invalidated")
	}
}

func TestAdapter_InvalidateAll(t *testing.T) {
	a := newTestAdapter(t)

	a.CacheResponse(Request{Method: http.MethodGet, URL: "/projects", Tags: []string{"projects"}},
		&CachedResponse{Status: 200})
	a.InvalidateAll()

	if _, _, ok := a.GetCachedResponse(Request{Method: http.MethodGet, URL: "/projects"}); ok {
		t.Error("entry survived InvalidateAll")
	}
	if n := a.InvalidateByTag("projects"); n != 0 {
		t.Errorf("tag index survived InvalidateAll: %d", n)
	}
}
