// Package ratelimit implements a client-side request limiter for external
// board providers. Providers document a hard budget (speedrun.com allows 100
// requests per minute); the limiter keeps the client under it by blocking
// acquirers instead of failing them.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter allows at most limit acquisitions per sliding window. It never
// retries anything itself: a caller that acquires a slot gets exactly one
// request, and failed requests do not return their slot.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration

	// grants holds the acquisition times still inside the window,
	// oldest first.
	grants []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter allowing limit acquisitions per window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Acquire blocks until a request slot is available or ctx is done. On
// success the slot is consumed immediately.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Allow reports whether a slot is available right now, consuming it if so.
func (l *Limiter) Allow() bool {
	_, ok := l.tryAcquire()
	return ok
}

// tryAcquire consumes a slot if one is free. When the limiter is saturated
// it returns how long until the oldest grant leaves the window.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.expire(now)

	if len(l.grants) < l.limit {
		l.grants = append(l.grants, now)
		return 0, true
	}

	return l.grants[0].Add(l.window).Sub(now), false
}

// expire drops grants that have left the window.
func (l *Limiter) expire(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.grants) && !l.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
