package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow counts requests per client IP in one-minute windows
// keyed in Redis, so the limit holds across API replicas.
type RedisFixedWindow struct {
	client *redis.Client
	prefix string
	limit  int
}

// NewRedisFixedWindow creates a limiter allowing perMinute requests per IP.
func NewRedisFixedWindow(client *redis.Client, prefix string, perMinute int) *RedisFixedWindow {
	if prefix == "" {
		prefix = "eventtrack:ratelimit"
	}
	return &RedisFixedWindow{client: client, prefix: prefix, limit: perMinute}
}

func (l *RedisFixedWindow) allow(ctx context.Context, ip string) bool {
	key := l.prefix + ":" + ip + ":" + time.Now().UTC().Format("200601021504")
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		// Redis down: let traffic through rather than reject everything.
		return true
	}
	if n == 1 {
		l.client.Expire(ctx, key, 2*time.Minute)
	}
	return n <= int64(l.limit)
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *RedisFixedWindow) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(c.Request.Context(), ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"status": "error", "message": "rate limit"})
			return
		}
		c.Next()
	}
}
