package adminapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// slogRequestLogger is a gin middleware that logs each admin API request
// through the shared slog logger, grounded on the teacher's
// middleware.SlogRequestLogger.
func slogRequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		if logger == nil {
			return
		}
		logger.Debug("admin api request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
