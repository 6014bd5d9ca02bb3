package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func rateLimitedHandler(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func doRequest(e *echo.Echo, h echo.HandlerFunc, remoteAddr string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RequestsWithinBurst(t *testing.T) {
	e := echo.New()
	h := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		rec, err := doRequest(e, h, "")
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_RefusesBeyondBurst(t *testing.T) {
	e := echo.New()
	h := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if _, err := doRequest(e, h, ""); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	_, err := doRequest(e, h, "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	e := echo.New()
	h := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := doRequest(e, h, ""); err != nil {
		t.Fatalf("first request: unexpected error: %v", err)
	}

	rec, err := doRequest(e, h, "")
	if err == nil {
		t.Fatal("expected error for throttled request")
	}

	retryAfter := rec.Header().Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header to be set")
	}
	secs, parseErr := strconv.Atoi(retryAfter)
	if parseErr != nil {
		t.Fatalf("Retry-After is not an integer: %q", retryAfter)
	}
	if secs < 1 {
		t.Errorf("expected Retry-After >= 1, got %d", secs)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", got)
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	e := echo.New()
	h := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := doRequest(e, h, "10.0.0.1:1234"); err != nil {
		t.Fatalf("client A first request: unexpected error: %v", err)
	}
	if _, err := doRequest(e, h, "10.0.0.1:1234"); err == nil {
		t.Fatal("client A second request: expected throttle error")
	}

	// A second client keeps its own budget.
	if _, err := doRequest(e, h, "10.0.0.2:1234"); err != nil {
		t.Fatalf("client B first request: unexpected error: %v", err)
	}
}

func TestRateLimit_DisabledWithZeroRate(t *testing.T) {
	e := echo.New()
	h := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 0, BurstSize: 1})

	for i := 0; i < 10; i++ {
		rec, err := doRequest(e, h, "")
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("expected RequestsPerSecond 100, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("expected BurstSize 200, got %d", cfg.BurstSize)
	}
}

func TestLimiter_BurstThenRecovery(t *testing.T) {
	l := newLimiter(1, 2)
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if ok, _ := l.take(base); !ok {
			t.Fatalf("request %d: expected burst slot", i+1)
		}
	}

	ok, wait := l.take(base)
	if ok {
		t.Fatal("expected refusal beyond burst")
	}
	if wait != time.Second {
		t.Errorf("expected 1s until the next slot, got %v", wait)
	}

	if ok, _ := l.take(base.Add(time.Second)); !ok {
		t.Error("expected a slot after one emission interval")
	}
}

func TestLimiterPool_ReusesPerKey(t *testing.T) {
	pool := newLimiterPool(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	a := pool.lookup("key1")
	if a == nil {
		t.Fatal("expected non-nil limiter")
	}
	if pool.lookup("key1") != a {
		t.Error("expected same limiter instance for same key")
	}
	if pool.lookup("key2") == a {
		t.Error("expected distinct limiter for distinct key")
	}
}
