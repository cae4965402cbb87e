package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// Limiter is a per-client token bucket. Each client identity gets its own
// bucket of capacity tokens refilled at refillPerSec; Allow consumes one
// token when available. It guards the read-heavy analytics endpoint, which
// is the only shared resource outside the idempotency store.
type Limiter struct {
	capacity     float64
	refillPerSec float64

	mu      sync.Mutex
	buckets map[string]*bucket

	now func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// New creates a Limiter allowing bursts of capacity requests refilled at
// refillPerSec tokens per second per client.
func New(capacity int, refillPerSec float64) (*Limiter, error) {
	if capacity <= 0 {
		return nil, errors.New("ratelimit: capacity must be positive")
	}
	if refillPerSec <= 0 {
		return nil, errors.New("ratelimit: refill rate must be positive")
	}
	return &Limiter{
		capacity:     float64(capacity),
		refillPerSec: refillPerSec,
		buckets:      make(map[string]*bucket),
		now:          time.Now,
	}, nil
}

// Allow reports whether the client may proceed and consumes a token if so.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[clientID]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[clientID] = b
	} else {
		elapsed := now.Sub(b.last).Seconds()
		b.tokens += elapsed * l.refillPerSec
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
