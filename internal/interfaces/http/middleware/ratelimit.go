package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/marketsync/backend/internal/interfaces/http/dto"
)

// RateLimiter hands out one token bucket per key. A key may burst up to
// limit requests and refills at limit per window. Buckets idle for longer
// than two windows are dropped on the next sweep.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	every   rate.Limit
	now     func() time.Time
	swept   time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows limit requests per window per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		every:   rate.Limit(float64(limit) / window.Seconds()),
		now:     time.Now,
	}
}

// Reserve takes a token for key. It returns the remaining tokens, or the
// delay until the next token when the bucket is empty.
func (rl *RateLimiter) Reserve(key string) (remaining int, retryAfter time.Duration, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{lim: rate.NewLimiter(rl.every, rl.limit)}
		rl.buckets[key] = b
	}
	b.seen = now

	if !b.lim.AllowN(now, 1) {
		r := b.lim.ReserveN(now, 1)
		delay := r.DelayFrom(now)
		r.CancelAt(now)
		return 0, delay, false
	}
	return int(math.Floor(b.lim.TokensAt(now))), 0, true
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.swept) < rl.window {
		return
	}
	rl.swept = now
	for key, b := range rl.buckets {
		if now.Sub(b.seen) > 2*rl.window {
			delete(rl.buckets, key)
		}
	}
}

// RateLimit limits requests per operator subject, or per client IP for
// unauthenticated requests. It must run after JWT authentication.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if subject := Subject(c); subject != "" {
			key = "sub:" + subject
		}

		remaining, retryAfter, ok := limiter.Reserve(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			abort(c, http.StatusTooManyRequests, dto.ErrCodeRateLimited, "Too many requests")
			return
		}
		c.Next()
	}
}
