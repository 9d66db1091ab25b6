package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// AccessLogger emits one structured http_request record per request
// through the default slog logger. It must run after RequestID.
func AccessLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		slog.LogAttrs(c.Request.Context(), level, "http_request",
			slog.String("request_id", requestID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// Logger returns the default logger annotated with the request ID.
func Logger(c *gin.Context) *slog.Logger {
	return slog.Default().With(slog.String("request_id", requestID(c)))
}

func requestID(c *gin.Context) string {
	if rid := GetRequestID(c); rid != "" {
		return rid
	}
	return c.Writer.Header().Get(requestIDHeader)
}
