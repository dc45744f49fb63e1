// Package middleware provides HTTP middleware for the broker's gin router.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name for request ID correlation.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin context key for request ID.
	RequestIDKey = "request_id"
)

// RequestID generates or extracts a correlation ID for each request, storing
// it in the context and echoing it on the response header. Put first in the
// middleware chain so downstream loggers can read it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the gin context.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
