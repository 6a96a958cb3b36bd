package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimitMiddleware(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequestID(RateLimit(base, 1, 1))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1000"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	if first.Code != http.StatusNoContent {
		t.Fatalf("first request: status %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "192.0.2.2:1000"
	third := httptest.NewRecorder()
	handler.ServeHTTP(third, other)
	if third.Code != http.StatusNoContent {
		t.Fatalf("other IP: status %d", third.Code)
	}
}

func TestRequestIDEchoedAndThreaded(t *testing.T) {
	var seen string
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestID(base)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen == "" {
		t.Fatal("request id missing from context")
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Fatal("request id not echoed in response header")
	}

	// A caller-supplied id is preserved.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "caller-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "caller-id" || rec.Header().Get("X-Request-Id") != "caller-id" {
		t.Fatalf("caller id not preserved: %q", seen)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("unexpected client ip %q", ip)
	}
	req.Header.Del("X-Forwarded-For")
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Fatalf("unexpected client ip %q", ip)
	}
}
