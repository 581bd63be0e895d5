package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts, latencies and the in-flight gauge.  The
// route template is used as the path label so IDs do not explode the
// label space; unmatched routes are labelled "unmatched".
func Metrics(m *prometheus.ProtonationMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := m.HTTPActiveRequests.WithLabelValues()
		active.Inc()
		start := time.Now()

		c.Next()

		active.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

//Personal.AI order the ending
