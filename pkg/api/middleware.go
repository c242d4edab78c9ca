package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxRequestBodyBytes caps request bodies server-wide, well above any
// workflow-start input this platform expects but far below an accidental
// multi-MB/GB payload.
const maxRequestBodyBytes = 2 * 1024 * 1024

// bodyLimit rejects oversized request bodies before handler dispatch.
func bodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodyBytes)
		c.Next()
	}
}

// securityHeaders sets standard security response headers on every
// response, mirroring the teacher's echo middleware of the same name.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}
