package middlewares

import (
	"strconv"
	"strings"

	"match-connect/internal/metrics"
	"match-connect/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogging middleware assigns request ids and logs every request
func RequestLogging(log *logger.Logger) gin.HandlerFunc {
	return log.RequestLogger()
}

// AuthMetrics counts outcomes of the token endpoints
func AuthMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if !strings.Contains(path, "/auth/") {
			return
		}
		endpoint := path[strings.LastIndex(path, "/")+1:]

		outcome := "success"
		switch status := c.Writer.Status(); {
		case status == 401 || status == 403:
			outcome = "rejected"
		case status >= 500:
			outcome = "error"
		case status >= 400:
			outcome = "invalid_" + strconv.Itoa(status)
		}
		m.RecordAuth(endpoint, outcome)
	}
}
