package httpapi

import (
	"log/slog"
	"time"

	"github.com/aurumvault/adminauth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// maxRequestIDLength caps client-supplied request IDs.
const maxRequestIDLength = 128

// requestContext tags the request context with a request ID, client IP and
// user agent for audit events, and echoes the ID back.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx := adminauth.WithRequestID(c.Request.Context(), id)
		ctx = adminauth.WithClientIP(ctx, c.ClientIP())
		ctx = adminauth.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", adminauth.RequestIDFromContext(c.Request.Context()),
		)
	}
}
