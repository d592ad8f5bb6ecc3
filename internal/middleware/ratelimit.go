package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"eduhub/pkg/kvstore"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimit allows limit requests per client IP per fixed window. The counter
// lives in kvstore so every replica shares it. A counter outage fails open.
func RateLimit(counter kvstore.Counter, limit int, window time.Duration, prefix string, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		key := "rl:" + prefix + ":" + c.ClientIP()
		n, err := counter.Incr(c.Request.Context(), key, window)
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("[RateLimit] counter unavailable")
			c.Next()
			return
		}
		if n > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// LoginLimiter is a per-IP token bucket for credential endpoints.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*loginEntry
	every    rate.Limit
	burst    int
}

type loginEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewLoginLimiter(perMinute float64, burst int) *LoginLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LoginLimiter{
		limiters: make(map[string]*loginEntry),
		every:    rate.Limit(perMinute / 60),
		burst:    burst,
	}
}

func (l *LoginLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[key]
	if !ok {
		e = &loginEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[key] = e
	}
	e.seen = time.Now()
	return e.limiter.Allow()
}

// Prune forgets keys idle for longer than idle.
func (l *LoginLimiter) Prune(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	for k, e := range l.limiters {
		if e.seen.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}

func (l *LoginLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, slow down"})
			return
		}
		c.Next()
	}
}
