package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/scheduler-api/internal/handler"
)

type RateLimiterConfig struct {
	RPS   float64
	Burst int
	// IdleTTL evicts limiters of clients that have gone quiet.
	IdleTTL time.Duration
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config   RateLimiterConfig
	limiters *cache.Cache
	mu       sync.Mutex
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.Burst <= 0 {
		config.Burst = int(math.Max(1, config.RPS))
	}
	return &RateLimiter{
		config:   config,
		limiters: cache.New(config.IdleTTL, config.IdleTTL*2),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.limiters.Get(key); ok {
		l := v.(*rate.Limiter)
		rl.limiters.SetDefault(key, l)
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)
	rl.limiters.SetDefault(key, l)
	return l
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			retryAfter := 1
			if rl.config.RPS > 0 {
				retryAfter = int(math.Ceil(1 / rl.config.RPS))
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, handler.NewErrorResponse("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
