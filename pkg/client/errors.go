package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrOffline is returned when the runtime is offline and the
	// request could not be served from cache.
	ErrOffline = errors.New("offline")
)

// APIError represents a failed request with HTTP-level context.
// A Status of 0 means no response was received (network error).
type APIError struct {
	Status     int
	StatusText string
	Message    string
	RequestID  string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("network error: %s: %v", e.Message, e.Err)
		}
		return fmt.Sprintf("network error: %s", e.Message)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("request failed (status %d %s, request %s): %s",
			e.Status, e.StatusText, e.RequestID, e.Message)
	}
	return fmt.Sprintf("request failed (status %d %s): %s",
		e.Status, e.StatusText, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// newNetworkError wraps a transport-level failure in the status-0
// error shape.
func newNetworkError(err error) *APIError {
	return &APIError{
		Status:     0,
		StatusText: "Network Error",
		Message:    "no response received",
		Err:        err,
	}
}

// newOfflineError builds the synthetic error raised while offline.
// Queued requests tell the caller they will be replayed on reconnect.
func newOfflineError(method, url string, queued bool) error {
	if queued {
		return fmt.Errorf("%w: %s %s queued for replay when connectivity returns", ErrOffline, method, url)
	}
	return fmt.Errorf("%w: %s %s unavailable and not cached", ErrOffline, method, url)
}

// isTimeout reports whether a transport error is a connection timeout,
// the only class of no-response errors the retry policy considers
// retryable.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
