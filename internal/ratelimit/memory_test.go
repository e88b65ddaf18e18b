package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, rate float64, burst int) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(rate, burst)
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close error: %v", err)
		}
	})
	return m
}

func mustAllow(t *testing.T, m *MemoryLimiter, key string) bool {
	t.Helper()
	ok, err := m.Allow(context.Background(), key)
	if err != nil {
		t.Fatalf("Allow(%q) error: %v", key, err)
	}
	return ok
}

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	m := newTestLimiter(t, 10, 3)

	for i := 0; i < 3; i++ {
		if !mustAllow(t, m, "client:acme") {
			t.Fatalf("request %d should be within the burst", i)
		}
	}
	if mustAllow(t, m, "client:acme") {
		t.Fatal("request past the burst should be denied")
	}
}

func TestMemoryLimiterQuotaRefills(t *testing.T) {
	// 1000/s refills one unit per millisecond; a short sleep after
	// exhausting the burst must readmit the caller.
	m := newTestLimiter(t, 1000, 2)

	for i := 0; i < 2; i++ {
		mustAllow(t, m, "client:acme")
	}
	if mustAllow(t, m, "client:acme") {
		t.Fatal("should be denied right after exhausting the burst")
	}

	time.Sleep(5 * time.Millisecond)

	if !mustAllow(t, m, "client:acme") {
		t.Fatal("should be allowed again after the quota refilled")
	}
}

func TestMemoryLimiterCallersAreIndependent(t *testing.T) {
	m := newTestLimiter(t, 10, 1)

	if !mustAllow(t, m, "client:acme") {
		t.Fatal("first request for acme should succeed")
	}
	if mustAllow(t, m, "client:acme") {
		t.Fatal("second request for acme should be denied")
	}
	if !mustAllow(t, m, "client:globex") {
		t.Fatal("globex must not be affected by acme's quota")
	}
}

func TestMemoryLimiterQuotaCapsAtBurst(t *testing.T) {
	// A long-idle caller banks at most one burst, not rate*idle units.
	m := newTestLimiter(t, 1000, 3)

	mustAllow(t, m, "client:acme")
	m.mu.Lock()
	m.quotas["client:acme"].lastSeen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := 0; i < 3; i++ {
		if !mustAllow(t, m, "client:acme") {
			t.Fatalf("request %d should fit in the banked burst", i)
		}
	}
	if mustAllow(t, m, "client:acme") {
		t.Fatal("banked quota must not exceed the burst size")
	}
}

func TestMemoryLimiterConcurrentSameKey(t *testing.T) {
	m := newTestLimiter(t, 100, 50)

	var wg sync.WaitGroup
	allowed := make([]int, 10)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(context.Background(), "client:shared")
				if err != nil {
					t.Errorf("goroutine %d: Allow error: %v", idx, err)
					return
				}
				if ok {
					allowed[idx]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, n := range allowed {
		total += n
	}
	if total < 1 || total > 50 {
		t.Fatalf("100 concurrent requests against burst 50: allowed %d, want 1..50", total)
	}
}

func TestMemoryLimiterEvictsIdleCallers(t *testing.T) {
	m := newTestLimiter(t, 10, 5)

	mustAllow(t, m, "client:idle")
	mustAllow(t, m, "client:active")

	m.mu.Lock()
	m.quotas["client:idle"].lastSeen = time.Now().Add(-idleEviction - time.Minute)
	m.mu.Unlock()

	m.evictIdle(time.Now().Add(-idleEviction))

	m.mu.Lock()
	_, idle := m.quotas["client:idle"]
	_, active := m.quotas["client:active"]
	m.mu.Unlock()

	if idle {
		t.Fatal("idle caller should have been evicted")
	}
	if !active {
		t.Fatal("active caller must survive eviction")
	}
	if got := m.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "anything")
		if err != nil {
			t.Fatalf("NoopLimiter.Allow error: %v", err)
		}
		if !ok {
			t.Fatal("NoopLimiter should always allow")
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("NoopLimiter.Close error: %v", err)
	}
}
