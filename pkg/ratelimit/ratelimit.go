// Package ratelimit provides a sliding-window rate limiter with an
// in-memory store and net/http middleware.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidLimit  = errors.New("limit must be positive")
	ErrInvalidWindow = errors.New("window must be positive")
	ErrStoreRequired = errors.New("store is required")
	ErrKeyRequired   = errors.New("key is required")
)

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
// Zero when the request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter is the check the middleware runs once per request.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Store persists per-key hit timestamps.
type Store interface {
	// Take records a hit at now unless limit hits already sit inside
	// (now-window, now]. It returns the in-window count after the call.
	Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (count int64, allowed bool, err error)
	// Delete forgets the key.
	Delete(ctx context.Context, key string) error
}
