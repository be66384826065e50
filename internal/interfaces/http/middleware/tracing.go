// Package middleware provides HTTP middleware for the sync API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing returns otelgin followed by a handler that tags the server span
// with the request ID, the marketplace path parameter and the authenticated
// operator. Returns nothing when disabled.
func Tracing(serviceName string, enabled bool) []gin.HandlerFunc {
	if !enabled {
		return nil
	}
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), annotateSpan}
}

// annotateSpan runs inside the otelgin span. Attributes are set after the
// rest of the chain so the JWT subject is known.
func annotateSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	c.Next()

	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.String("request_id", GetRequestID(c)))
	if mp := c.Param("marketplace"); mp != "" {
		span.SetAttributes(attribute.String("marketplace", mp))
	}
	if subject := Subject(c); subject != "" {
		span.SetAttributes(attribute.String("operator", subject))
	}
	if c.Writer.Status() >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
	}
}
