package admission

import (
	"sync"
	"testing"
	"time"
)

func TestAllowFixedWindow(t *testing.T) {
	current := time.Unix(1000, 0)
	l := NewLimiter(WithLimiterClock(func() time.Time { return current }))

	for i := 0; i < 3; i++ {
		if !l.Allow("IP:1.2.3.4", 3, 60) {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if l.Allow("IP:1.2.3.4", 3, 60) {
		t.Fatalf("4th call within the window must be rejected")
	}

	// A fresh window resets the counter to 1.
	current = current.Add(61 * time.Second)
	if !l.Allow("IP:1.2.3.4", 3, 60) {
		t.Fatalf("call after window elapsed should be allowed")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := NewLimiter()
	if !l.Allow("IP:a", 1, 60) {
		t.Fatalf("first key should be allowed")
	}
	if l.Allow("IP:a", 1, 60) {
		t.Fatalf("first key should now be limited")
	}
	if !l.Allow("EMAIL:b@example.com", 1, 60) {
		t.Fatalf("other key must have its own window")
	}
}

func TestAllowBoundaryBurstIsAccepted(t *testing.T) {
	// The fixed-window scheme permits up to 2x the limit across a window
	// boundary. This is a documented property, pinned here so nobody
	// "fixes" it into a different algorithm by accident.
	current := time.Unix(2000, 0)
	l := NewLimiter(WithLimiterClock(func() time.Time { return current }))

	for i := 0; i < 3; i++ {
		l.Allow("k", 3, 60)
	}
	current = current.Add(60 * time.Second)
	allowed := 0
	for i := 0; i < 3; i++ {
		if l.Allow("k", 3, 60) {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("expected full fresh window after boundary, got %d", allowed)
	}
}

func TestAllowConcurrentCountsAreNotLost(t *testing.T) {
	l := NewLimiter()
	const calls = 100

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("k", 10, 60) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("expected exactly 10 allowed under concurrency, got %d", allowed)
	}
}

func TestPrune(t *testing.T) {
	current := time.Unix(3000, 0)
	l := NewLimiter(WithLimiterClock(func() time.Time { return current }))

	l.Allow("a", 5, 60)
	l.Allow("b", 5, 120)

	current = current.Add(61 * time.Second)
	if n := l.Prune(); n != 1 {
		t.Fatalf("expected 1 pruned window, got %d", n)
	}
	// Key "b" keeps its live window and count.
	if !l.Allow("b", 2, 120) {
		t.Fatalf("live window should still allow")
	}
	if l.Allow("b", 2, 120) {
		t.Fatalf("count must have been preserved across Prune")
	}
}
