// Command cache-proxy fronts a JSON API with the caching client. GETs
// are served cache-first with stale-while-revalidate, mutations pass
// through and invalidate related cached reads, and Prometheus metrics
// are exposed on /metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/nexusmkt/apiclient/pkg/client"
	"github.com/nexusmkt/apiclient/pkg/logging"
)

func main() {
	listen := pflag.StringP("listen", "l", ":8080", "http listen address")
	baseURL := pflag.StringP("base-url", "b", "", "upstream API origin, e.g. https://api.example.com")
	cacheTTL := pflag.Duration("cache-ttl", 5*time.Minute, "default cache TTL for GET responses")
	cacheSize := pflag.Int("cache-size", 500, "maximum number of cached responses")
	logLevel := pflag.String("log-level", "info", "log level (debug, info, warn, error)")
	pretty := pflag.BoolP("pretty", "p", false, "human-readable log output")
	pflag.Parse()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(*logLevel),
		Pretty: *pretty,
	})

	if *baseURL == "" {
		logger.Fatal().Msg("--base-url is required")
	}

	cfg := client.DefaultConfig(*baseURL)
	cfg.Cache.MaxSize = *cacheSize
	cfg.Cache.DefaultTTL = *cacheTTL
	cfg.Cache.StaleWhileRevalidate = true
	// A server-side proxy is assumed online; the offline queue is a
	// client-device feature.
	cfg.OfflineSupport = false

	api, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API client")
	}

	srv := &http.Server{
		Addr:    *listen,
		Handler: newRouter(api, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("listen", *listen).
			Str("base_url", *baseURL).
			Dur("cache_ttl", *cacheTTL).
			Int("cache_size", *cacheSize).
			Msg("Starting cache proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}

// newRouter wires the proxy routes.
func newRouter(api *client.Client, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/api/").Handler(http.StripPrefix("/api", proxyHandler(api, logger)))
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// proxyHandler forwards requests through the caching client. The
// X-Cache response header reports HIT, STALE, or MISS for GETs.
func proxyHandler(api *client.Client, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts := &client.RequestOptions{
			Params:  r.URL.Query(),
			Headers: r.Header,
		}

		resp, err := dispatch(r, api, opts)
		if err != nil {
			writeError(w, err)
			return
		}

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		if r.Method == http.MethodGet {
			w.Header().Set("X-Cache", cacheState(resp))
		}
		w.WriteHeader(resp.Status)
		if _, err := w.Write(resp.Data); err != nil {
			logger.Warn().Err(err).Str("endpoint", r.URL.Path).Msg("Failed to write response")
		}
	})
}

// dispatch maps the incoming method to the corresponding client verb.
func dispatch(r *http.Request, api *client.Client, opts *client.RequestOptions) (*client.Response, error) {
	ctx := r.Context()
	path := r.URL.Path

	switch r.Method {
	case http.MethodGet:
		return api.Get(ctx, path, opts)
	case http.MethodDelete:
		return api.Delete(ctx, path, opts)
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		body, err := readJSONBody(r)
		if err != nil {
			return nil, err
		}
		switch r.Method {
		case http.MethodPost:
			return api.Post(ctx, path, body, opts)
		case http.MethodPut:
			return api.Put(ctx, path, body, opts)
		default:
			return api.Patch(ctx, path, body, opts)
		}
	default:
		return nil, &client.APIError{
			Status:     http.StatusMethodNotAllowed,
			StatusText: http.StatusText(http.StatusMethodNotAllowed),
			Message:    fmt.Sprintf("method %s not supported", r.Method),
		}
	}
}

// readJSONBody passes the raw body through untouched; the client
// marshals request bodies as JSON, so raw bytes ride along as a
// json.RawMessage.
func readJSONBody(r *http.Request) (any, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, &client.APIError{
			Status:     http.StatusBadRequest,
			StatusText: http.StatusText(http.StatusBadRequest),
			Message:    "request body is not valid JSON",
		}
	}
	return json.RawMessage(data), nil
}

func cacheState(resp *client.Response) string {
	switch {
	case resp.Stale:
		return "STALE"
	case resp.Cached:
		return "HIT"
	default:
		return "MISS"
	}
}

// writeError maps client errors to proxy responses. Upstream API
// errors keep their status; transport failures become 502.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	message := err.Error()

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status > 0 {
		status = apiErr.Status
		message = apiErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
