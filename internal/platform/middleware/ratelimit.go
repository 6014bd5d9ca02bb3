package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration. A non-positive
// RequestsPerSecond disables limiting entirely.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// limiter paces requests with a virtual-scheduling clock: every allowed
// request advances a theoretical arrival time by one emission interval, and a
// request is refused once that clock has run further ahead of real time than
// the burst allowance permits.
type limiter struct {
	mu        sync.Mutex
	interval  time.Duration // spacing between sustained requests
	allowance time.Duration // how far the clock may run ahead of now
	clock     time.Time     // theoretical arrival time of the next request
}

func newLimiter(rate float64, burst int) *limiter {
	if burst < 1 {
		burst = 1
	}
	interval := time.Duration(float64(time.Second) / rate)
	return &limiter{
		interval:  interval,
		allowance: time.Duration(burst-1) * interval,
	}
}

// take reports whether a request arriving at now may proceed. When refused it
// also returns how long the caller must wait for the next slot.
func (l *limiter) take(now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	arrival := l.clock
	if arrival.Before(now) {
		arrival = now
	}
	if ahead := arrival.Sub(now); ahead > l.allowance {
		return false, ahead - l.allowance
	}
	l.clock = arrival.Add(l.interval)
	return true, 0
}

// limiterPool lazily creates one limiter per client key.
type limiterPool struct {
	mu    sync.Mutex
	cfg   RateLimitConfig
	byKey map[string]*limiter
}

func newLimiterPool(cfg RateLimitConfig) *limiterPool {
	return &limiterPool{cfg: cfg, byKey: make(map[string]*limiter)}
}

func (p *limiterPool) lookup(key string) *limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.byKey[key]
	if !ok {
		l = newLimiter(p.cfg.RequestsPerSecond, p.cfg.BurstSize)
		p.byKey[key] = l
	}
	return l
}

func retrySeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimit returns a middleware that throttles clients by IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	pool := newLimiterPool(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.RequestsPerSecond <= 0 {
				return next(c)
			}

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", limitHeader)

			ok, wait := pool.lookup(c.RealIP()).take(time.Now())
			if !ok {
				header.Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
				header.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
