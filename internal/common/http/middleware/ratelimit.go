package middleware

import (
	"fmt"
	"time"

	"mathtutor/internal/common/ratelimit"
	"mathtutor/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

type RateLimitPolicy struct {
	Window  time.Duration `yaml:"window"`
	IPMax   int           `yaml:"ipMax"`
	UserMax int           `yaml:"userMax"`
}

// RateLimitMiddleware enforces per-route limits by client IP and, when the
// caller is authenticated, by user id.
func RateLimitMiddleware(limiter ratelimit.Limiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	window := policy.Window
	if window <= 0 {
		window = time.Minute
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.IPMax > 0 {
			key := fmt.Sprintf("rate:ip:%s:%s", c.ClientIP(), routeKey)
			if err := limiter.Allow(ctx, key, policy.IPMax, window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if policy.UserMax > 0 {
			if userID, ok := c.Get(userIDContextKey); ok {
				key := fmt.Sprintf("rate:user:%v:%s", userID, routeKey)
				if err := limiter.Allow(ctx, key, policy.UserMax, window); err != nil {
					response.AbortWithError(c, err)
					return
				}
			}
		}
		c.Next()
	}
}
