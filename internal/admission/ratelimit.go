// Package admission gates credential-issuing endpoints with a ban list and a
// fixed-window rate limiter. It runs before any token logic so rejected
// callers never learn whether an identifier exists.
package admission

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt int64
}

// Limiter is a fixed-window counter per key. It deliberately permits up to
// twice the nominal limit across a window boundary; that burst is the
// documented cost of the scheme's low overhead, not a defect.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// LimiterOption configures Limiter construction.
type LimiterOption func(*Limiter)

// WithLimiterClock overrides the time source (useful for tests).
func WithLimiterClock(fn func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLimiter constructs an empty Limiter. State is process-local and does
// not survive restarts.
func NewLimiter(opts ...LimiterOption) *Limiter {
	l := &Limiter{windows: make(map[string]*window), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request against key and reports whether the post-increment
// count stays within max for the current window. On first use of a key, or
// once its window has elapsed, the counter resets to 1 and a new window of
// windowSeconds begins. Keys are free-form strings namespaced by the caller
// ("IP:..." or "EMAIL:...").
func (l *Limiter) Allow(key string, max, windowSeconds int) bool {
	now := l.now().Unix()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || w.resetAt <= now {
		l.windows[key] = &window{count: 1, resetAt: now + int64(windowSeconds)}
		return 1 <= max
	}
	w.count++
	return w.count <= max
}

// Prune drops elapsed windows so the map does not grow without bound.
// Called from the maintenance ticker, never from the request path.
func (l *Limiter) Prune() int {
	now := l.now().Unix()

	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	for key, w := range l.windows {
		if w.resetAt <= now {
			delete(l.windows, key)
			n++
		}
	}
	return n
}
