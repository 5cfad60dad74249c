package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL     = 2 * time.Minute
	limiterSweepPeriod = 5 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a middleware that enforces a per-IP token bucket of
// maxRequests per minute, with bursts up to maxRequests. A non-positive
// maxRequests disables limiting.
func RateLimiter(maxRequests int) gin.HandlerFunc {
	if maxRequests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	clients := make(map[string]*clientLimiter)
	every := rate.Every(time.Minute / time.Duration(maxRequests))

	// Cleanup idle entries periodically
	go func() {
		ticker := time.NewTicker(limiterSweepPeriod)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for ip, entry := range clients {
				if now.Sub(entry.lastSeen) > limiterIdleTTL {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		entry, ok := clients[ip]
		if !ok {
			entry = &clientLimiter{limiter: rate.NewLimiter(every, maxRequests)}
			clients[ip] = entry
		}
		entry.lastSeen = time.Now()
		allowed := entry.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Maximum " + strconv.Itoa(maxRequests) + " requests per minute.",
			})
			return
		}
		c.Next()
	}
}
