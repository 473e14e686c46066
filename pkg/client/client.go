// Package client provides the caching HTTP API client: cache-first
// GETs with stale-while-revalidate, request de-duplication, retry with
// exponential backoff, offline queuing, and mutation-driven cache
// invalidation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nexusmkt/apiclient/pkg/apicache"
	"github.com/nexusmkt/apiclient/pkg/cache"
	"github.com/nexusmkt/apiclient/pkg/logging"
)

// DefaultTimeout bounds each network attempt.
const DefaultTimeout = 30 * time.Second

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API origin, e.g. "https://api.example.com".
	BaseURL string

	// Timeout bounds each network attempt (default 30s). A timeout is
	// treated as a retryable connection error.
	Timeout time.Duration

	// Headers are sent with every request; per-request headers are
	// merged over them.
	Headers http.Header

	// Cache configures the in-memory cache manager.
	Cache cache.ManagerConfig

	// ResponseCache configures response cacheability.
	ResponseCache apicache.Config

	// Retry is the default retry policy.
	Retry RetryPolicy

	// OfflineSupport enables the offline queue and replay.
	OfflineSupport bool

	// MaxReplayAttempts caps replays per queued request; 0 means a
	// failing request is requeued indefinitely (the documented
	// behavior, see offlineQueue).
	MaxReplayAttempts int

	// Probe overrides connectivity detection. Defaults to a
	// ManualProbe toggled via SetOnline.
	Probe ConnectivityProbe

	// HTTPClient overrides the transport (for tests).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration for the given API
// origin.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        DefaultTimeout,
		Cache:          cache.DefaultManagerConfig(),
		ResponseCache:  apicache.DefaultConfig(),
		Retry:          DefaultRetryPolicy(),
		OfflineSupport: true,
	}
}

// Response is the settled result of a request.
type Response struct {
	// Data is the raw response body.
	Data []byte

	// Status is the HTTP status code.
	Status int

	// StatusText is the HTTP status text.
	StatusText string

	// Header is the response header set.
	Header http.Header

	// Cached reports the response was served from cache.
	Cached bool

	// Stale reports the cached response was past its TTL; a background
	// refresh has been triggered when stale-while-revalidate is on.
	Stale bool
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Client is the caching API client. Construct instances explicitly
// with New; there is no package-level singleton, so tests can run
// isolated clients side by side.
type Client struct {
	httpClient *http.Client
	cfg        Config
	manager    *cache.Manager
	adapter    *apicache.Adapter
	logger     zerolog.Logger

	flight singleflight.Group
	queue  offlineQueue
	probe  ConnectivityProbe
	manual *ManualProbe

	mu            sync.Mutex
	authToken     string
	authObservers []func(status int, url string)
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.StatusCodes == nil && cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	logger := logging.NewLogger("api-client")

	manager := cache.NewManager(cfg.Cache)
	adapter := apicache.NewAdapter(manager, cfg.ResponseCache, logger)

	c := &Client{
		httpClient: cfg.HTTPClient,
		cfg:        cfg,
		manager:    manager,
		adapter:    adapter,
		logger:     logger,
		probe:      cfg.Probe,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if c.probe == nil {
		c.manual = NewManualProbe()
		c.probe = c.manual
	}
	return c, nil
}

// Get performs a cache-first GET request.
func (c *Client) Get(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	return c.execute(ctx, http.MethodGet, path, nil, opts, true)
}

// Post performs a POST request; on success, cached GETs under the
// mutated resource are invalidated.
func (c *Client) Post(ctx context.Context, path string, body any, opts *RequestOptions) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, http.MethodPost, path, payload, opts, true)
}

// Put performs a PUT request with mutation invalidation.
func (c *Client) Put(ctx context.Context, path string, body any, opts *RequestOptions) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, http.MethodPut, path, payload, opts, true)
}

// Patch performs a PATCH request with mutation invalidation.
func (c *Client) Patch(ctx context.Context, path string, body any, opts *RequestOptions) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, http.MethodPatch, path, payload, opts, true)
}

// Delete performs a DELETE request with mutation invalidation.
func (c *Client) Delete(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	return c.execute(ctx, http.MethodDelete, path, nil, opts, true)
}

// SetAuthToken sets the bearer token sent with every request; the
// empty string clears it. The token never contributes to cache keys.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// OnAuthError registers an observer invoked whenever a response
// carries status 401. Observers run synchronously before the error is
// returned to the caller; session-refresh logic hooks in here instead
// of a global event bus.
func (c *Client) OnAuthError(fn func(status int, url string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authObservers = append(c.authObservers, fn)
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.adapter.InvalidateAll()
}

// CacheStats returns a snapshot of cache counters.
func (c *Client) CacheStats() cache.Stats {
	return c.adapter.Stats()
}

// InvalidateByTag drops every cached response stored under the tag.
func (c *Client) InvalidateByTag(tag string) int {
	return c.adapter.InvalidateByTag(tag)
}

// SetOnline toggles the default connectivity probe. Transitioning to
// online triggers an offline queue replay. No-op when a custom probe
// is configured; call ReplayOfflineQueue after your probe recovers.
func (c *Client) SetOnline(online bool) {
	if c.manual == nil {
		return
	}
	if c.manual.set(online) && online {
		go c.drainQueue()
	}
}

// ReplayOfflineQueue drains the offline queue in FIFO order. Requests
// failing during replay move to the back of the queue.
func (c *Client) ReplayOfflineQueue() {
	c.drainQueue()
}

// OfflineQueueLen returns the number of requests waiting for replay.
func (c *Client) OfflineQueueLen() int {
	return c.queue.len()
}

// PendingReplays returns a snapshot of the offline queue.
func (c *Client) PendingReplays() []QueuedRequest {
	return c.queue.snapshot()
}

// encodeBody marshals a request body to JSON; nil stays nil.
func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return payload, nil
}

// execute runs one logical request. allowQueue gates offline
// enqueueing so queue replays cannot re-enqueue themselves.
func (c *Client) execute(ctx context.Context, method, path string, payload []byte, opts *RequestOptions, allowQueue bool) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	creq := c.cacheRequest(method, path, opts)
	isGet := method == http.MethodGet

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	// Offline short-circuit: serve GETs from cache in any state,
	// queue everything else.
	if c.cfg.OfflineSupport && !c.probe.Online() {
		return c.handleOffline(method, path, payload, opts, creq, allowQueue)
	}

	// Cache-first GET.
	if isGet && c.adapter.IsCacheable(creq) {
		if cached, state, ok := c.adapter.GetCachedResponse(creq); ok {
			requestsTotal.WithLabelValues(path, "cache_hit").Inc()
			resp := responseFromCached(cached, state)
			if state == cache.StateStale && !opts.Background {
				c.backgroundRefresh(path, opts)
			}
			return resp, nil
		}
	}

	if isGet {
		return c.dedupedFetch(ctx, path, opts, creq)
	}

	resp, err := c.fetch(ctx, method, path, payload, opts, creq)
	if err != nil {
		return nil, err
	}

	// Coarse consistency: a successful mutation invalidates every
	// cached GET under the resource's first path segment.
	prefix := apicache.PrefixForURL(apicache.FirstPathSegment(path))
	if n := c.adapter.InvalidateByPrefix(prefix); n > 0 {
		c.logger.Debug().
			Str("endpoint", path).
			Str("prefix", prefix).
			Int("invalidated", n).
			Msg("Invalidated cached entries after mutation")
	}
	return resp, nil
}

// dedupedFetch shares one network call among concurrent identical
// GETs. A caller whose context ends stops waiting, but the underlying
// call keeps running for the remaining waiters.
func (c *Client) dedupedFetch(ctx context.Context, path string, opts *RequestOptions, creq apicache.Request) (*Response, error) {
	key := apicache.Key{Method: http.MethodGet, URL: path, Params: opts.Params}.String()

	ch := c.flight.DoChan(key, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), http.MethodGet, path, nil, opts, creq)
	})

	select {
	case res := <-ch:
		if res.Shared {
			dedupSharedTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetch performs the network attempt with retry and backoff, then
// stores cacheable GET responses.
func (c *Client) fetch(ctx context.Context, method, path string, payload []byte, opts *RequestOptions, creq apicache.Request) (*Response, error) {
	policy := c.cfg.Retry.merge(opts.Retry)

	var lastErr *APIError
	for attempt := 0; ; attempt++ {
		resp, apiErr := c.attempt(ctx, method, path, payload, opts)
		if apiErr == nil {
			if attempt > 0 {
				c.logger.Info().
					Str("endpoint", path).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			if method == http.MethodGet {
				c.adapter.CacheResponse(creq, &apicache.CachedResponse{
					Body:       resp.Data,
					Status:     resp.Status,
					StatusText: resp.StatusText,
					Header:     resp.Header,
					CachedAt:   time.Now(),
				})
			}
			return resp, nil
		}

		lastErr = apiErr
		if !c.isRetryable(apiErr, policy) {
			return nil, lastErr
		}
		if attempt >= policy.MaxRetries {
			retryExhaustedTotal.Inc()
			c.logger.Warn().
				Str("endpoint", path).
				Int("max_retries", policy.MaxRetries).
				Int("status", apiErr.Status).
				Msg("Retry attempts exhausted")
			lastErr.Err = errors.Join(ErrRetryExhausted, lastErr.Err)
			return nil, lastErr
		}

		delay := policy.Backoff(attempt)
		retriesTotal.Inc()
		c.logger.Debug().
			Str("endpoint", path).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Int("status", apiErr.Status).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// attempt performs one network attempt bounded by the request timeout.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, opts *RequestOptions) (*Response, *APIError) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(reqCtx, method, c.buildURL(path, opts), body)
	} else {
		req, err = http.NewRequestWithContext(reqCtx, method, c.buildURL(path, opts), nil)
	}
	if err != nil {
		return nil, &APIError{Status: 0, StatusText: "Network Error", Message: "build request", Err: err}
	}
	c.applyHeaders(req, opts, payload != nil)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, newNetworkError(err)
	}
	defer httpResp.Body.Close()

	data, err := readBody(httpResp)
	if err != nil {
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, newNetworkError(err)
	}

	requestsTotal.WithLabelValues(path, strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode == http.StatusUnauthorized {
		authErrorsTotal.Inc()
		c.notifyAuthError(httpResp.StatusCode, path)
	}

	if httpResp.StatusCode >= 400 {
		return nil, apiErrorFromResponse(httpResp, data)
	}

	return &Response{
		Data:       data,
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Header:     httpResp.Header.Clone(),
	}, nil
}

// isRetryable applies the retry policy to an attempt error: listed
// statuses and connection timeouts qualify.
func (c *Client) isRetryable(apiErr *APIError, policy RetryPolicy) bool {
	if policy.MaxRetries <= 0 {
		return false
	}
	if apiErr.Status == 0 {
		return isTimeout(apiErr.Err)
	}
	return policy.RetryableStatus(apiErr.Status)
}

// backgroundRefresh revalidates a stale entry without blocking or
// failing the caller that received the stale value.
func (c *Client) backgroundRefresh(path string, opts *RequestOptions) {
	bgOpts := *opts
	bgOpts.Background = true
	cacheOpts := CacheOptions{}
	if opts.Cache != nil {
		cacheOpts = *opts.Cache
	}
	cacheOpts.ForceRefresh = true
	bgOpts.Cache = &cacheOpts

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.replayBudget())
		defer cancel()

		if _, err := c.execute(ctx, http.MethodGet, path, nil, &bgOpts, false); err != nil {
			backgroundRefreshTotal.WithLabelValues("error").Inc()
			c.logger.Warn().Err(err).
				Str("endpoint", path).
				Msg("Background refresh failed")
			return
		}
		backgroundRefreshTotal.WithLabelValues("ok").Inc()
		c.logger.Debug().Str("endpoint", path).Msg("Background refresh completed")
	}()
}

// handleOffline serves cached GETs in any state and queues what it
// cannot serve. Queued requests fail the caller with ErrOffline rather
// than pretending to succeed.
func (c *Client) handleOffline(method, path string, payload []byte, opts *RequestOptions, creq apicache.Request, allowQueue bool) (*Response, error) {
	if method == http.MethodGet {
		if cached, state, ok := c.adapter.GetCachedResponse(creq); ok {
			requestsTotal.WithLabelValues(path, "offline_cache_hit").Inc()
			return responseFromCached(cached, state), nil
		}
	}

	if !allowQueue {
		return nil, newOfflineError(method, path, false)
	}

	c.queue.enqueue(QueuedRequest{
		Method:     method,
		URL:        path,
		Body:       payload,
		Options:    *opts,
		EnqueuedAt: time.Now(),
	})
	offlineQueuedTotal.Inc()
	c.logger.Info().
		Str("method", method).
		Str("endpoint", path).
		Int("queue_len", c.queue.len()).
		Msg("Request queued while offline")

	return nil, newOfflineError(method, path, method != http.MethodGet)
}

// drainQueue replays queued requests in FIFO order. Only the requests
// present at drain start are processed; failures requeue at the back
// and wait for the next drain.
func (c *Client) drainQueue() {
	n := c.queue.len()
	if n == 0 {
		return
	}
	c.logger.Info().Int("queue_len", n).Msg("Replaying offline queue")

	for i := 0; i < n; i++ {
		qr, ok := c.queue.dequeue()
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.replayBudget())
		_, err := c.execute(ctx, qr.Method, qr.URL, qr.Body, &qr.Options, false)
		cancel()

		if err == nil {
			offlineReplayedTotal.WithLabelValues("ok").Inc()
			c.logger.Debug().
				Str("method", qr.Method).
				Str("endpoint", qr.URL).
				Msg("Replayed queued request")
			continue
		}

		qr.Attempts++
		if c.cfg.MaxReplayAttempts > 0 && qr.Attempts >= c.cfg.MaxReplayAttempts {
			offlineReplayedTotal.WithLabelValues("dropped").Inc()
			c.logger.Warn().Err(err).
				Str("method", qr.Method).
				Str("endpoint", qr.URL).
				Int("attempts", qr.Attempts).
				Dur("queue_age", time.Since(qr.EnqueuedAt)).
				Msg("Dropping queued request after max replay attempts")
			continue
		}

		offlineReplayedTotal.WithLabelValues("requeued").Inc()
		c.logger.Warn().Err(err).
			Str("method", qr.Method).
			Str("endpoint", qr.URL).
			Int("attempts", qr.Attempts).
			Msg("Replay failed, requeueing at back")
		c.queue.enqueue(qr)
	}
}

// replayBudget bounds background and replay requests, leaving room
// for the full retry schedule.
func (c *Client) replayBudget() time.Duration {
	return c.cfg.Timeout * time.Duration(c.cfg.Retry.MaxRetries+2)
}

// cacheRequest maps request options onto the adapter's request shape.
func (c *Client) cacheRequest(method, path string, opts *RequestOptions) apicache.Request {
	r := apicache.Request{
		Method:   method,
		URL:      path,
		Params:   opts.Params,
		Header:   c.mergedHeaders(opts),
		CacheKey: opts.CacheKey,
		Priority: opts.effectivePriority(),
	}
	if opts.Cache != nil {
		r.Disabled = opts.Cache.Disabled
		r.ForceRefresh = opts.Cache.ForceRefresh
		r.TTL = opts.Cache.TTL
		r.Tags = opts.Cache.Tags
	}
	return r
}

// mergedHeaders layers per-request headers over the client defaults.
func (c *Client) mergedHeaders(opts *RequestOptions) http.Header {
	merged := http.Header{}
	for name, values := range c.cfg.Headers {
		merged[name] = values
	}
	for name, values := range opts.Headers {
		merged[name] = values
	}
	return merged
}

// applyHeaders sets the merged headers, content type, and auth token
// on an outgoing request.
func (c *Client) applyHeaders(req *http.Request, opts *RequestOptions, hasBody bool) {
	for name, values := range c.mergedHeaders(opts) {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if hasBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	token := c.authToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// notifyAuthError invokes the registered 401 observers.
func (c *Client) notifyAuthError(status int, url string) {
	c.mu.Lock()
	observers := make([]func(int, string), len(c.authObservers))
	copy(observers, c.authObservers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(status, url)
	}
}

// buildURL joins the base URL, path, and query parameters.
func (c *Client) buildURL(path string, opts *RequestOptions) string {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(opts.Params) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + opts.Params.Encode()
	}
	return u
}

// responseFromCached rebuilds a Response from a cache entry.
func responseFromCached(cached *apicache.CachedResponse, state cache.EntryState) *Response {
	return &Response{
		Data:       cached.Body,
		Status:     cached.Status,
		StatusText: cached.StatusText,
		Header:     cached.Header,
		Cached:     true,
		Stale:      state == cache.StateStale,
	}
}

// apiErrorFromResponse builds an APIError, pulling message, field
// errors, and request id from a JSON error body when present.
func apiErrorFromResponse(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Message:    http.StatusText(resp.StatusCode),
	}

	var body struct {
		Message   string `json:"message"`
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			apiErr.Message = body.Message
		} else if body.Error != "" {
			apiErr.Message = body.Error
		}
		apiErr.RequestID = body.RequestID
	}
	return apiErr
}

// readBody drains and returns the response body.
func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf.Bytes(), nil
}
