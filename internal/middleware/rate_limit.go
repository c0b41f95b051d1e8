package middleware

import (
	"net/http"
	"sync"
	"time"

	"pairchat/internal/config"
	"pairchat/internal/utils"
	"pairchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiter tracks one token bucket per client IP
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	l := &ipLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go l.cleanup()
	return l
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// cleanup drops buckets idle for a few minutes so the map stays bounded
func (l *ipLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		for ip, entry := range l.limiters {
			if time.Since(entry.lastSeen) > 3*time.Minute {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit throttles requests per client IP
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := newIPLimiter(cfg.RequestsPerSecond, cfg.Burst)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.get(ip).Allow() {
			logger.LogSecurityEvent("rate_limited", GetUserID(c), ip, map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			utils.ErrorResponseWithCode(c, http.StatusTooManyRequests, utils.CodeRateLimited, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
