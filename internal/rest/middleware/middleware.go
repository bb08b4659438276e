package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/types"
)

// RequestID assigns every request a correlation id, honoring one supplied by
// the caller, and threads it through the request context so repository spans
// and log lines carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(types.HeaderRequestID)
		if requestID == "" {
			requestID = types.GenerateUUID()
		}

		ctx := types.SetRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(types.HeaderRequestID, requestID)
		c.Next()
	}
}

// Logging emits one structured access log line per request.
func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithContext(c.Request.Context()).Infow("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
