// Package ratelimit implements fixed-window request limiting keyed by
// (endpointClass, clientKey).
//
// Grounded on the keyed-mutex-guarded-map-of-limiters shape in
// leomuguchia-Bloomify_Server's middleware/rate_limiter.go, but with
// fixed-window counters rather than golang.org/x/time/rate's token
// bucket: a booking-commit endpoint wants "at most N attempts per
// minute, full stop", not a bucket that lets a burst through up front.
// x/time/rate is still part of this module's dependency stack — it
// throttles outbound calendar-provider calls instead, where a bursty
// token bucket is exactly the right shape.
package ratelimit

import (
	"sync"
	"time"
)

// Class names one of the limited endpoint groups.
type Class string

const (
	ClassBooking      Class = "booking"
	ClassAvailability Class = "availability"
	ClassOAuth        Class = "oauth"
)

// Limit is a fixed-window allowance: Max requests per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits are the per-class allowances.
var DefaultLimits = map[Class]Limit{
	ClassBooking:      {Max: 10, Window: 60 * time.Second},
	ClassAvailability: {Max: 30, Window: 60 * time.Second},
	ClassOAuth:        {Max: 5, Window: 60 * time.Second},
}

// Decision is the outcome of a Limiter.Allow check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count    int
	resetAt  time.Time
	lastUsed time.Time
}

// Limiter tracks a fixed window per (class, key). Stale windows are
// evicted lazily on access rather than by a background sweep, matching
// the teacher's store-is-just-a-map-behind-a-mutex approach.
type Limiter struct {
	mu      sync.Mutex
	limits  map[Class]Limit
	windows map[string]*window
	now     func() time.Time
}

// New builds a Limiter with the given per-class limits. Pass nil to use
// DefaultLimits.
func New(limits map[Class]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits
	}
	return &Limiter{
		limits:  limits,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records one attempt for (class, key) against the class's fixed
// window and reports whether it is permitted.
func (l *Limiter) Allow(class Class, key string) Decision {
	limit, ok := l.limits[class]
	if !ok {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictStale(now)

	mapKey := string(class) + "|" + key
	w, exists := l.windows[mapKey]
	if !exists || !now.Before(w.resetAt) {
		w = &window{count: 0, resetAt: now.Add(limit.Window)}
		l.windows[mapKey] = w
	}
	w.lastUsed = now

	if w.count >= limit.Max {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}
	w.count++
	return Decision{Allowed: true, Remaining: limit.Max - w.count, ResetAt: w.resetAt}
}

// evictStale drops windows whose reset time has long passed, bounding
// map growth for keys that stop making requests. Must be called with
// mu held.
func (l *Limiter) evictStale(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.lastUsed) > 10*time.Minute {
			delete(l.windows, k)
		}
	}
}
