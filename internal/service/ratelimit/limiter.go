package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a set of named token buckets.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket), now: time.Now} }

func (l *Limiter) get(key string, capacity, refillPerSec float64, now time.Time) *bucket {
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
		return b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	return b
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(key, capacity, refillPerSec, l.now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token for key is available or ctx is done. The token is
// reserved before sleeping, so concurrent waiters queue up in arrival order
// and never share a slot.
func (l *Limiter) Wait(ctx context.Context, key string, capacity, refillPerSec float64) error {
	l.mu.Lock()
	b := l.get(key, capacity, refillPerSec, l.now())
	b.tokens--
	var delay time.Duration
	if b.tokens < 0 {
		delay = time.Duration(-b.tokens / b.refillRate * float64(time.Second))
	}
	l.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		b.tokens++
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Pacer enforces a fixed minimum spacing between calls sharing one Limiter key.
type Pacer struct {
	limiter  *Limiter
	key      string
	interval time.Duration
}

func NewPacer(l *Limiter, key string, interval time.Duration) *Pacer {
	return &Pacer{limiter: l, key: key, interval: interval}
}

// Wait returns once the caller owns the next slot.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx, p.key, 1, float64(time.Second)/float64(p.interval))
}
