// Package ratelimit admits relayd requests per client with token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Config sets the per-client budget. A zero RequestsPerSecond disables
// limiting.
type Config struct {
	RequestsPerSecond float64
	// Burst defaults to twice the rate, and never less than one request.
	Burst float64
	// SweepEvery bounds how often idle clients are dropped.
	SweepEvery time.Duration
}

// Enabled reports whether cfg limits anything.
func (cfg Config) Enabled() bool {
	return cfg.RequestsPerSecond > 0
}

// Limiter keeps one bucket per client key.
type Limiter struct {
	capacity   float64
	refillRate float64
	sweepEvery time.Duration
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*TokenBucket
	lastSweep time.Time
}

// NewLimiter returns a limiter for cfg, or nil when cfg is disabled. A nil
// *Limiter admits everything.
func NewLimiter(cfg Config) *Limiter {
	return newLimiter(cfg, time.Now)
}

func newLimiter(cfg Config, now func() time.Time) *Limiter {
	if !cfg.Enabled() {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, 2*cfg.RequestsPerSecond)
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	return &Limiter{
		capacity:   cfg.Burst,
		refillRate: cfg.RequestsPerSecond,
		sweepEvery: cfg.SweepEvery,
		now:        now,
		buckets:    make(map[string]*TokenBucket),
		lastSweep:  now(),
	}
}

// Allow consumes one token from key's bucket. When it is refused, wait is
// how long until the next token.
func (l *Limiter) Allow(key string) (ok bool, remaining float64, wait time.Duration) {
	if l == nil {
		return true, 0, 0
	}
	b := l.bucket(key)
	if b.Allow() {
		return true, b.Remaining(), 0
	}
	return false, 0, b.WaitTime()
}

// Limit returns the burst size.
func (l *Limiter) Limit() float64 {
	if l == nil {
		return 0
	}
	return l.capacity
}

// Clients returns how many keys currently hold a bucket.
func (l *Limiter) Clients() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) bucket(key string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now := l.now(); now.Sub(l.lastSweep) >= l.sweepEvery {
		for k, b := range l.buckets {
			if b.full() {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = newTokenBucket(l.capacity, l.refillRate, l.now)
		l.buckets[key] = b
	}
	return b
}
