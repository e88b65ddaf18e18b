package ratelimit

import (
	"context"
	"sync"
	"time"
)

// quota is the remaining screening allowance for one caller. Allowance
// accrues continuously at the configured rate and is capped at the burst
// size, so an idle caller never banks more than one burst.
type quota struct {
	remaining float64
	lastSeen  time.Time
}

// MemoryLimiter enforces per-caller screening quotas in process. Each key
// (a client ID or, for unauthenticated token minting, an IP) owns an
// independent quota. A background goroutine drops quotas for callers idle
// longer than idleEviction so one-off clients do not accumulate.
type MemoryLimiter struct {
	refillPerSec float64
	capacity     float64

	mu     sync.Mutex
	quotas map[string]*quota

	done chan struct{}
	once sync.Once
}

const (
	evictInterval = time.Minute
	idleEviction  = 10 * time.Minute
)

// NewMemoryLimiter creates a limiter allowing a sustained rate of requests
// per second per key, with bursts up to burst. Call Close to stop the
// eviction goroutine.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		refillPerSec: rate,
		capacity:     float64(burst),
		quotas:       make(map[string]*quota),
		done:         make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Allow spends one unit of the caller's quota. False means the caller is
// over its rate and the request should be rejected.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[key]
	if !ok {
		q = &quota{remaining: m.capacity}
		m.quotas[key] = q
	} else {
		q.remaining += now.Sub(q.lastSeen).Seconds() * m.refillPerSec
		if q.remaining > m.capacity {
			q.remaining = m.capacity
		}
	}
	q.lastSeen = now

	if q.remaining < 1 {
		return false, nil
	}
	q.remaining--
	return true, nil
}

// Len returns the number of tracked callers.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.quotas)
}

// Close stops the eviction goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle(time.Now().Add(-idleEviction))
		}
	}
}

// evictIdle drops every quota last seen before cutoff.
func (m *MemoryLimiter) evictIdle(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, q := range m.quotas {
		if q.lastSeen.Before(cutoff) {
			delete(m.quotas, key)
		}
	}
}
