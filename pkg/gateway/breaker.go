package gateway

import (
	"sync"
	"time"
)

// breaker is a per-capability circuit breaker. After threshold
// consecutive failures the capability is open for cooldown and calls
// fail fast. The first call after cooldown probes the capability; a
// failure reopens it immediately.
type breaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	consecutive int
	openUntil   time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a call may proceed.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().After(b.openUntil)
}

// Open reports whether the breaker is currently open.
func (b *breaker) Open() bool {
	return !b.Allow()
}

func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive++
	if b.consecutive >= b.threshold {
		b.openUntil = time.Now().Add(b.cooldown)
		// A failed probe after cooldown reopens from here.
		b.consecutive = b.threshold - 1
	}
}
