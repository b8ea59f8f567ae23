package logging

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware logs one line per request, at a level chosen by status code.
func Middleware(logger *Logger) gin.HandlerFunc {
	logger = logger.WithComponent(ComponentHTTP)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		args := []any{
			FieldMethod, c.Request.Method,
			FieldPath, c.Request.URL.Path,
			FieldQuery, c.Request.URL.RawQuery,
			FieldStatusCode, status,
			FieldDuration, time.Since(start).Milliseconds(),
			FieldClientIP, c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, FieldError, c.Errors.String())
		}
		logger.Log(c.Request.Context(), level, "HTTP request completed", args...)
	}
}
