// Package ratelimit limits API requests per client over fixed windows, backed
// by process memory or a Redis-compatible server shared between replicas.
package ratelimit

import (
	"context"
	"time"
)

// Counter counts hits per key within a window
type Counter interface {
	// Increment adds one hit to key and returns the hit count of the current
	// window together with the time the window ends. The first hit opens a
	// window of the given length.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Reset forgets the current window of key
	Reset(ctx context.Context, key string) error

	Close() error
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Check counts one hit for key and decides whether it fits in limit
func Check(ctx context.Context, counter Counter, key string, limit int64, window time.Duration) (Decision, error) {
	count, resetAt, err := counter.Increment(ctx, key, window)
	if err != nil {
		return Decision{}, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
