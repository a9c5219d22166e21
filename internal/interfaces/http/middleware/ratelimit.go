package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scholar-match-api/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	// Limit 窗口内每个用户的请求上限
	Limit  int
	Window time.Duration
	// Endpoint 限流维度名称
	Endpoint string
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// KeyFunc 构建限流键
type KeyFunc func(userID, endpoint string) string

// RateLimit 按用户滑动窗口限流，限流器故障时放行
func RateLimit(cfg RateLimitConfig, limiter RateLimiter, keyFn KeyFunc) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "api"
	}

	return func(c *gin.Context) {
		subject := RequesterFrom(c).UserID
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}

		allowed, err := limiter.Allow(c.Request.Context(), keyFn(subject, cfg.Endpoint), cfg.Limit, cfg.Window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     429,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
