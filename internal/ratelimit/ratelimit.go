// Package ratelimit guards the authentication endpoints with a sliding-window
// counter keyed by client IP and user agent. The window lives behind a Store
// so a single process can run on the in-memory map while multi-instance
// deployments point at redis.
package ratelimit

import (
	"context"
	"time"
)

// Store counts attempts per key. The window length is fixed at construction;
// it resets per key relative to the first recorded attempt.
type Store interface {
	// Hit records an attempt and returns the updated count plus the instant
	// the key's window resets.
	Hit(ctx context.Context, key string) (int, time.Time, error)
	// Peek reads the current count without recording an attempt.
	Peek(ctx context.Context, key string) (int, time.Time, error)
}

// Limiter applies the max-attempts policy on top of a Store.
type Limiter struct {
	store Store
	max   int
	now   func() time.Time
}

func New(store Store, maxAttempts int) *Limiter {
	return &Limiter{store: store, max: maxAttempts, now: time.Now}
}

// Limited reports whether the key has exhausted its attempts, and if so how
// long until the window resets.
func (l *Limiter) Limited(ctx context.Context, key string) (bool, time.Duration, error) {
	count, reset, err := l.store.Peek(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if count < l.max {
		return false, 0, nil
	}
	retry := reset.Sub(l.now())
	if retry < 0 {
		retry = 0
	}
	return true, retry, nil
}

// Record counts one failed attempt against the key.
func (l *Limiter) Record(ctx context.Context, key string) error {
	_, _, err := l.store.Hit(ctx, key)
	return err
}

// Key builds the shared limiter key space for a client.
func Key(clientIP, userAgent string) string {
	return clientIP + "|" + userAgent
}
