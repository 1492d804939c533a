package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"rpg-narrative-api/internal/interfaces/http/dto"
	apperrors "rpg-narrative-api/pkg/errors"
	"rpg-narrative-api/pkg/logger"
)

// RateLimitConfig Limit 与 Window 缺省为每分钟 30 次。Key 返回空串的请求不计数。
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
	Key     func(c *gin.Context) string
}

// RateLimiter 滑动窗口计数，超限返回 false
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按 Key 限流；限流器出错时放行并告警
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil || cfg.Key == nil {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := cfg.Key(c)
		if key == "" {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), key, cfg.Limit, cfg.Window)
		switch {
		case err != nil:
			logger.Warn(c.Request.Context(), "rate limiter unavailable, letting request through",
				"key", key, "error", err.Error())
		case !allowed:
			dto.FromError(c, apperrors.ErrTooManyRequests.WithDetail(
				fmt.Sprintf("at most %d actions per %s", cfg.Limit, cfg.Window)))
			return
		}

		c.Next()
	}
}
