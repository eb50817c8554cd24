package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/imsportal/filingstack/internal/tracing"
)

// TracingMiddleware creates a new span for each request and adds common tags
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Start span using existing utility
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(
			c.Request.Context(),
			c.Request.Method+" "+c.FullPath(),
			c.Request.Header,
		)
		defer span.Finish()

		// instance and request id tags come from the custom context
		tracing.SetDefaultRestSpanTags(ctx, span)

		if id := c.Param("id"); id != "" {
			tracing.TagEntity(span, id)
		}

		// Store span in context
		c.Request = c.Request.WithContext(ctx)

		// Process request
		c.Next()

		ext.HTTPStatusCode.Set(span, uint16(c.Writer.Status()))
		if c.Writer.Status() >= 500 {
			ext.Error.Set(span, true)
		}
	}
}
