package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/huziichuk/bcs-broker/internal/logger"
)

// StructuredLoggerConfig configures StructuredLogger's access-log behavior.
type StructuredLoggerConfig struct {
	SkipPaths       []string
	SkipHealthCheck bool
	LogQuery        bool
}

// DefaultStructuredLoggerConfig skips /health and logs query strings.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipHealthCheck: true,
		LogQuery:        true,
	}
}

// StructuredLogger logs one structured access-log line per request: method,
// path, status, duration, client IP, and the request ID set by RequestID.
func StructuredLogger() gin.HandlerFunc {
	return StructuredLoggerWithConfig(DefaultStructuredLoggerConfig())
}

// StructuredLoggerWithConfig is StructuredLogger with explicit skip rules.
func StructuredLoggerWithConfig(config StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths)+1)
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	if config.SkipHealthCheck {
		skip["/health"] = true
	}

	log := logger.HTTP()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}

		event = event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP())

		if config.LogQuery && raw != "" {
			event = event.Str("query", raw)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.Msg("request handled")
	}
}
