package ratelimit

import (
	"sync"
	"time"
)

// Defaults for the public API quota.
const (
	DefaultLimit  = 15
	DefaultWindow = time.Minute
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	Remaining  int
	Limit      int
	RetryAfter time.Duration
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// Limiter counts requests per client key over a fixed window. The counter
// resets when the window rolls over; there is no smoothing across windows.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	now func() time.Time
}

// New creates a Limiter allowing limit requests per window per client key.
// Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one request from key's budget and reports whether it fit
// inside the current window.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		b = &bucket{windowEnd: now.Add(l.window)}
		l.buckets[key] = b
	}

	if b.count >= l.limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			Limit:      l.limit,
			RetryAfter: b.windowEnd.Sub(now),
		}
	}
	b.count++
	return Decision{
		Allowed:   true,
		Remaining: l.limit - b.count,
		Limit:     l.limit,
	}
}
