package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const defaultIdleTimeout = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	logger  *logrus.Logger
	limit   rate.Limit
	burst   int
	idle    time.Duration
	clients map[string]*clientLimiter
	mu      sync.Mutex
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with the given burst per client.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int, logger *logrus.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		logger:  logger,
		limit:   limit,
		burst:   burst,
		idle:    defaultIdleTimeout,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow reports whether the client may make a request now
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	client, ok := rl.clients[clientID]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientID] = client
	}
	now := rl.now()
	client.lastSeen = now
	rl.mu.Unlock()

	return client.limiter.AllowN(now, 1)
}

// Cleanup forgets clients idle longer than the idle timeout
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	removed := 0
	for id, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// Run cleans up idle clients every interval until ctx is done
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Cleanup(); n > 0 {
				rl.logger.WithField("removed", n).Debug("Cleaned up idle rate limit clients")
			}
		}
	}
}

// RateLimit aborts requests over the client's budget with 429
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !rl.Allow(clientIP) {
			rl.logger.WithFields(logrus.Fields{
				"client_ip":      clientIP,
				"path":           c.Request.URL.Path,
				"correlation_id": c.GetString(CorrelationIDKey),
			}).Warn("Request denied: rate limit exceeded")

			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "请求过于频繁，请稍后再试",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}
