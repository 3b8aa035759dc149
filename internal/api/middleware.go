package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Vihanga22365/governance-analysis/internal/governance"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

func metricsMiddleware(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func rateLimit(limiter *governance.RateLimiter, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow(route) {
			writeError(c, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded for "+route)
			return
		}
		c.Next()
	}
}
