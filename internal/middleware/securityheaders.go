package middleware

import "github.com/gin-gonic/gin"

// SecurityHeaders sets the minimal set of response headers appropriate for a
// JSON/WebSocket API with no served HTML: no MIME sniffing, no framing, and
// no caching of responses that reflect live queue/session state.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		if c.Request.URL.Path != "/health" {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
		}
		c.Next()
	}
}
