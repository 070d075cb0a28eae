// Package ratelimit keeps one token bucket per key. The gateway waits on it to
// throttle outbound calls per endpoint scope; the fake API server uses Allow to
// reject bursts of login attempts per client address.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks request rates per key with idle expiration.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// New constructs a per-key limiter that allows up to `requests` events per
// `window` with an additional burst capacity. Buckets idle for longer than ttl
// are dropped.
func New(requests int, window time.Duration, burst int, ttl time.Duration) *Limiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return newLimiter(rate.Every(window/time.Duration(requests)), burst, ttl)
}

// PerSecond constructs a limiter from a fractional events-per-second rate.
func PerSecond(rps float64, burst int, ttl time.Duration) *Limiter {
	if rps <= 0 {
		return newLimiter(rate.Inf, burst, ttl)
	}
	return newLimiter(rate.Limit(rps), burst, ttl)
}

func newLimiter(limit rate.Limit, burst int, ttl time.Duration) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow reports whether an event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	return l.bucketFor(key).AllowN(l.currentTime(), 1)
}

// Wait blocks until an event for key is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucketFor(key).Wait(ctx)
}

// WithNowFunc allows tests to override the time source.
func (l *Limiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Limiter) currentTime() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now()
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if ok {
		b.lastSeen = now
	} else {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
		l.buckets[key] = b
	}
	l.gcLocked(now)
	return b.limiter
}

func (l *Limiter) gcLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}

// Size reports how many keys are currently tracked.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
