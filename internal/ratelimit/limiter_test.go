package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func keyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
}

func testRateLimiter_BurstThenDeny(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	key := keyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of burst %d denied", i+1, burst)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request beyond burst %d allowed", burst)
	}
}

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rapid.Check(t, testRateLimiter_BurstThenDeny)
}

func testRateLimiter_KeysAreIndependent(t *rapid.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	a := keyGenerator().Draw(t, "a")
	b := keyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	if !rl.Allow(a) {
		t.Fatalf("first request for %s denied", a)
	}
	if !rl.Allow(b) {
		t.Fatalf("exhausting %s denied %s", a, b)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rapid.Check(t, testRateLimiter_KeysAreIndependent)
}

func TestRateLimiter_CleanupDropsIdle(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 1, Burst: 1, CleanupInterval: time.Nanosecond})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	time.Sleep(time.Millisecond)
	rl.Cleanup()
	if rl.Len() != 0 {
		t.Fatalf("expected idle limiter to be dropped, have %d", rl.Len())
	}
}

func TestMiddleware_Returns429(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	handler := Middleware(rl, ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/login/", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:1234"
	if got := ClientIP(req); got != "198.51.100.2" {
		t.Fatalf("ClientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("ClientIP with XFF = %q", got)
	}
}
