// Package apicache bridges HTTP request/response semantics to the
// cache manager: deterministic cache key derivation, cacheability
// decisions, and invalidation by URL pattern, prefix, or tag.
package apicache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// headerAllowList is the subset of request headers that contribute to
// cache keys. Authorization is deliberately excluded so keys are not
// fragmented per credential and tokens never leak into key strings.
var headerAllowList = []string{
	"accept",
	"content-type",
	"x-api-version",
	"x-requested-with",
}

// Key identifies a cacheable request.
type Key struct {
	// Method is the HTTP method (case-insensitive).
	Method string

	// URL is the request path or full URL.
	URL string

	// Params are the query parameters.
	Params url.Values

	// Header is the request header set; only allow-listed headers
	// contribute to the key.
	Header http.Header
}

// String generates a deterministic cache key string.
// Format: method:url:param1=val1:param2=val2:hdr.accept=...
//
// Example:
//
//	get:/projects:page=2:hdr.accept=application/json
func (k Key) String() string {
	parts := []string{strings.ToLower(k.Method), k.URL}

	// Query params, sorted for determinism.
	if len(k.Params) > 0 {
		paramKeys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			paramKeys = append(paramKeys, key)
		}
		sort.Strings(paramKeys)

		for _, key := range paramKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params.Get(key)))
		}
	}

	// Allow-listed headers, the list itself is already sorted. The
	// hdr. prefix keeps header parts from aliasing query params.
	for _, name := range headerAllowList {
		if v := k.Header.Get(name); v != "" {
			parts = append(parts, fmt.Sprintf("hdr.%s=%s", name, v))
		}
	}

	return strings.Join(parts, ":")
}

// PrefixForURL returns the key prefix covering every cached GET whose
// URL starts with the given path. Mutation invalidation uses this with
// the first path segment of the mutated resource.
func PrefixForURL(path string) string {
	return "get:" + path
}

// FirstPathSegment extracts the leading path segment of a URL path,
// e.g. "/projects/123/tasks" -> "/projects".
func FirstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}
