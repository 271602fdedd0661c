package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"tinyex.com/pkg/common"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/ratelimit"
)

// RateLimit limits each client IP per route.
func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if !store.Allow(c.ClientIP() + ":" + route) {
			// expected under load, no stack
			logger.Warn(c.Request.Context(), "http rate limited",
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			common.Fail(c, http.StatusTooManyRequests, common.TooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
