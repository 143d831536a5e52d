package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convocation-rfid-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route. Raw paths
// carry EPCs and would give every tag its own series.
const unmatchedRoute = "unmatched"

// Metrics observes request latency and status per route template. Paths in
// skip (the scrape endpoint, probes) are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
