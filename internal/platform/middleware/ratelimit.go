package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts buckets that have not been touched for this long.
	IdleTTL time.Duration
}

// LoginRateLimitConfig throttles credential guessing on /auth/login.
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 0.2, BurstSize: 5, IdleTTL: 30 * time.Minute}
}

// TokenRateLimitConfig throttles the anonymous questionnaire surface, where
// the path token is the only credential.
func TokenRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 5, BurstSize: 30, IdleTTL: 10 * time.Minute}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

type limiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	buckets map[string]*bucket
	now     func() time.Time
	sweptAt time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &limiter{cfg: cfg, buckets: make(map[string]*bucket), now: time.Now}
}

// allow reports whether key may proceed and, if not, how many seconds until
// a token is available.
func (l *limiter) allow(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstSize), lastSeen: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * l.cfg.RequestsPerSecond
	if ceiling := float64(l.cfg.BurstSize); b.tokens > ceiling {
		b.tokens = ceiling
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/l.cfg.RequestsPerSecond) + 1
}

func (l *limiter) sweep(now time.Time) {
	if now.Sub(l.sweptAt) < l.cfg.IdleTTL {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
			delete(l.buckets, k)
		}
	}
	l.sweptAt = now
}

// RateLimit applies a per-client-IP token bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	l := newLimiter(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			ok, retryAfter := l.allow(c.RealIP())
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
