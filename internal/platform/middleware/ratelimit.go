package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig throttles form posts and record API calls.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// WritesOnly exempts GET, HEAD and OPTIONS so list and detail navigation
	// is never throttled.
	WritesOnly bool
	// IdleTTL drops a client's limiter after this long without traffic.
	// Zero means ten minutes.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig is used when the configured rate is not positive.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		WritesOnly:        true,
	}
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one limiter per client key.
type limiterSet struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	idle    time.Duration
	swept   time.Time
	now     func() time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &limiterSet{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

// get returns the limiter for key, evicting idle clients at most once per
// idle period.
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.swept) >= s.idle {
		for k, cl := range s.clients {
			if now.Sub(cl.lastSeen) >= s.idle {
				delete(s.clients, k)
			}
		}
		s.swept = now
	}

	cl, ok := s.clients[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.lim
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// retryAfter is the whole number of seconds until lim has a token again.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// rateLimitKey buckets by client IP, narrowed to the session when one is
// attached so receptionists behind one NAT do not share a bucket.
func rateLimitKey(c echo.Context) string {
	key := c.RealIP()
	if sid := contextString(c, SessionIDKey); sid != "" {
		key = sid + "@" + key
	}
	return key
}

// RateLimit rejects a client that exceeds its budget with 429 and a
// Retry-After header.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	set := newLimiterSet(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.WritesOnly && safeMethod(c.Request().Method) {
				return next(c)
			}

			lim := set.get(rateLimitKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			now := set.now()
			if !lim.AllowN(now, 1) {
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("Retry-After", strconv.Itoa(retryAfter(lim, now)))
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests. Please wait a moment and try again.")
			}
			return next(c)
		}
	}
}

func safeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
