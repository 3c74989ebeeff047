// Package ratelimit throttles per-connection command throughput with a
// token bucket, grounded on the teacher's rate limiter (hand-rolled bucket
// in internal/single/limits/rate_limiter.go, golang.org/x/time/rate usage
// in internal/shared/limits/resource_guard.go). We use golang.org/x/time/rate
// directly rather than reimplementing the bucket, since nothing here needs
// the teacher's lock-free float64 fields beyond what the library offers.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per connection id.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[int64]*rate.Limiter
	ratePerSec float64
	burst      int
	enabled    bool
}

// New constructs a Limiter. ratePerSec <= 0 disables limiting: Allow always
// returns true and no bucket is ever allocated.
func New(ratePerSec int) *Limiter {
	return &Limiter{
		buckets:    make(map[int64]*rate.Limiter),
		ratePerSec: float64(ratePerSec),
		burst:      maxInt(ratePerSec, 1) * 2,
		enabled:    ratePerSec > 0,
	}
}

// Allow reports whether the connection identified by id may execute one
// more command right now.
func (l *Limiter) Allow(id int64) bool {
	if !l.enabled {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[id]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.ratePerSec), l.burst)
		l.buckets[id] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// Remove discards the bucket for a closed connection.
func (l *Limiter) Remove(id int64) {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	delete(l.buckets, id)
	l.mu.Unlock()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
