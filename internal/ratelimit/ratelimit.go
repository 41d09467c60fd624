// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package ratelimit implements the per-key token-bucket registry. Buckets
// are created lazily on first consult, refilled by wall-clock time via
// x/time/rate, and evicted by a background sweep once idle past the TTL.
// Denied requests consume nothing and never queue.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const stripeCount = 64

// Decision is the outcome of one bucket consult.
type Decision struct {
	Allowed bool
	// Remaining is the whole tokens left after this request (allowed only).
	Remaining int
	// ResetAfter is the time until the bucket is full again (allowed only).
	ResetAfter time.Duration
	// RetryAfter is the wait until one token is available (denied only).
	RetryAfter time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	capacity int
	lastSeen time.Time
}

type stripe struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter is a sharded token-bucket registry keyed by API key. Safe for
// concurrent use; Close stops the eviction sweep.
type Limiter struct {
	capacity int
	window   time.Duration
	ttl      time.Duration

	stripes [stripeCount]stripe

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLimiter builds a registry with the process-wide defaults: buckets hold
// capacity tokens and refill fully over window. Buckets idle longer than
// ttl are evicted by a background sweep.
func NewLimiter(capacity int, window, ttl time.Duration) *Limiter {
	l := &Limiter{
		capacity: capacity,
		window:   window,
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	for i := range l.stripes {
		l.stripes[i].buckets = make(map[string]*bucket)
	}
	l.wg.Add(1)
	go l.sweep()
	return l
}

// Consume takes one token from key's bucket. capacityOverride, when
// non-nil and positive, sizes the bucket instead of the default; a change
// of capacity rebuilds the bucket full.
func (l *Limiter) Consume(key string, capacityOverride *int) Decision {
	return l.consumeAt(time.Now(), key, capacityOverride)
}

func (l *Limiter) consumeAt(now time.Time, key string, capacityOverride *int) Decision {
	capacity := l.capacity
	if capacityOverride != nil && *capacityOverride > 0 {
		capacity = *capacityOverride
	}

	s := &l.stripes[stripeIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.capacity != capacity {
		b = &bucket{
			lim:      rate.NewLimiter(refill(capacity, l.window), capacity),
			capacity: capacity,
		}
		s.buckets[key] = b
	}
	b.lastSeen = now

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		// Unreachable with n=1 and capacity >= 1; fail closed regardless.
		return Decision{RetryAfter: l.window}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		// Not enough tokens: give them back rather than queueing.
		res.CancelAt(now)
		return Decision{RetryAfter: delay}
	}

	tokens := b.lim.TokensAt(now)
	return Decision{
		Allowed:    true,
		Remaining:  int(math.Floor(tokens)),
		ResetAfter: durationUntilFull(b, tokens),
	}
}

// durationUntilFull is (capacity - tokens) / refill.
func durationUntilFull(b *bucket, tokens float64) time.Duration {
	missing := float64(b.capacity) - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(b.lim.Limit()) * float64(time.Second))
}

func refill(capacity int, window time.Duration) rate.Limit {
	return rate.Limit(float64(capacity) / window.Seconds())
}

// sweep drops buckets idle past the TTL. Eviction is safe: the next
// consult repopulates a full bucket.
func (l *Limiter) sweep() {
	defer l.wg.Done()
	interval := l.ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.evictIdle(now)
		}
	}
}

func (l *Limiter) evictIdle(now time.Time) {
	for i := range l.stripes {
		s := &l.stripes[i]
		s.mu.Lock()
		for key, b := range s.buckets {
			if now.Sub(b.lastSeen) > l.ttl {
				delete(s.buckets, key)
			}
		}
		s.mu.Unlock()
	}
}

// Close stops the sweep goroutine.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
}

func (l *Limiter) size() int {
	n := 0
	for i := range l.stripes {
		s := &l.stripes[i]
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

// stripeIndex is FNV-1a folded to the stripe count.
func stripeIndex(key string) int {
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return int(h & (stripeCount - 1))
}
