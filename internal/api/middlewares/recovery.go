package middlewares

import (
	"fmt"

	"match-connect/internal/api/models"
	"match-connect/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery middleware recovers from panics
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.StructuredError(fmt.Errorf("panic: %v", recovered), map[string]interface{}{
			"path":       c.Request.URL.Path,
			"request_id": c.GetString("request_id"),
		})
		abort(c, models.Internal("Internal server error"))
	})
}
