package client

import (
	"time"
)

// RetryPolicy holds the configuration for retry logic.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// RetryDelay is the base backoff delay; attempt n waits
	// RetryDelay * 2^n.
	RetryDelay time.Duration

	// StatusCodes lists the HTTP statuses worth retrying.
	StatusCodes []int
}

// DefaultRetryPolicy returns the default retry configuration: three
// retries with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		RetryDelay:  1 * time.Second,
		StatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

// RetryableStatus reports whether the status is in the retry list.
func (p RetryPolicy) RetryableStatus(status int) bool {
	for _, s := range p.StatusCodes {
		if s == status {
			return true
		}
	}
	return false
}

// Backoff returns the delay before the given retry (0-based):
// RetryDelay, 2*RetryDelay, 4*RetryDelay, ...
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	return p.RetryDelay << retryCount
}

// merge applies a per-request override to the policy. A Disabled
// override returns a zero-retry policy.
func (p RetryPolicy) merge(o *RetryOptions) RetryPolicy {
	if o == nil {
		return p
	}
	if o.Disabled {
		return RetryPolicy{RetryDelay: p.RetryDelay}
	}
	merged := p
	if o.MaxRetries > 0 {
		merged.MaxRetries = o.MaxRetries
	}
	if o.RetryDelay > 0 {
		merged.RetryDelay = o.RetryDelay
	}
	if len(o.StatusCodes) > 0 {
		merged.StatusCodes = o.StatusCodes
	}
	return merged
}
