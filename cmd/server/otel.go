package main

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	cidpkg "github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/cid"
)

// otelMiddleware starts a span for every HTTP request and records the
// method, target and status. The correlation id placed on the context by
// cidMiddleware is attached as a span attribute so traces and logs can be
// joined on it.
func (s *Server) otelMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("pa-server")
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.Request.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.target", c.Request.URL.Path),
		)
		if cid := cidpkg.CIDFromContext(ctx); cid != "" {
			span.SetAttributes(attribute.String(cidpkg.AttributeName, cid))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}
