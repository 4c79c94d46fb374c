package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduler-api/pkg/logger"
)

// Logger logs one line per request. It expects RequestID to run first.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		zl := log.Zerolog()
		event := zl.Info()
		msg := "Request processed"
		if statusCode >= 500 {
			event = zl.Error()
			msg = "Server error"
		} else if statusCode >= 400 {
			event = zl.Warn()
			msg = "Client error"
		}

		if len(c.Errors) > 0 {
			event = event.Err(c.Errors.Last().Err)
		}

		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", statusCode).
			Dur("duration", latency).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
