package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	maxTrackedKeys = 10000
	idleLimiterTTL = 10 * time.Minute
)

// RateLimiter keeps one token bucket per chat user. Buckets of idle users
// are evicted after idleLimiterTTL.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	window   time.Duration
}

// NewRateLimiter allows perMinute requests per user per minute, with bursts
// of up to perMinute.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedKeys, nil, idleLimiterTTL),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		window:   time.Minute,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters.Get(key)
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
	}
	// Re-adding refreshes the idle TTL.
	rl.limiters.Add(key, l)
	return l
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Handler limits by the :id path parameter, falling back to the client IP.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("id")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": rl.window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
