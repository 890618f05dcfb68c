package middleware

import (
	"context"
	"strings"

	"mathtutor/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	userIDContextKey    = "user_id"
	userRoleContextKey  = "user_role"
)

// TraceContextMiddleware makes sure every request carries a trace id and a
// request id, both in the gin context and in the request context used for
// logging. Incoming ids are honored so callers can correlate across hops.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrNewID(c, traceIDHeader)
		requestID := headerOrNewID(c, requestIDHeader)

		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Set(traceIDContextKey, traceID)
		c.Set(requestIDContextKey, requestID)
		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()
	}
}

func headerOrNewID(c *gin.Context, header string) string {
	value := strings.TrimSpace(c.GetHeader(header))
	if value == "" || len(value) > 128 {
		return uuid.NewString()
	}
	return value
}

// setCaller records the authenticated caller for handlers and log lines.
func setCaller(c *gin.Context, userID int64, role string) {
	c.Set(userIDContextKey, userID)
	c.Set(userRoleContextKey, role)
	ctx := context.WithValue(c.Request.Context(), contextkey.UserID, userID)
	ctx = context.WithValue(ctx, contextkey.UserRole, role)
	c.Request = c.Request.WithContext(ctx)
}
