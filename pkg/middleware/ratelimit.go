package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/tradeexecution/pkg/config"
	"github.com/wyfcoding/tradeexecution/pkg/ratelimit"
)

// RateLimitMiddleware 基于 Redis 的限流中间件，按用户（缺省退回 IP）限流
func RateLimitMiddleware(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		// 优先使用请求头中的用户标识，未认证请求按 IP 限流
		subject := c.GetHeader("X-User-ID")
		if subject == "" {
			subject = c.ClientIP()
		}
		key := ratelimit.SubjectKey(subject)
		limit := ratelimit.Limit{
			Rate:   cfg.Rate,
			Period: time.Duration(cfg.Period) * time.Second,
			Burst:  cfg.Burst,
		}

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			// 限流器故障时放行
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetAfter/time.Second), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too Many Requests",
				"retry_after": res.RetryAfter.String(),
			})
			return
		}

		c.Next()
	}
}
