package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider
}

// Tracing returns the otelgin middleware, which starts one span per request
// named after the route pattern.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	var opts []otelgin.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanAttributes enriches the request span with the caller and database.
// Place it after Caller so the tenant context is available.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			c.Next()
			return
		}

		attrs := []attribute.KeyValue{
			attribute.String("request_id", GetRequestID(c)),
		}
		if role := GetCallerRole(c); role != "" {
			attrs = append(attrs, attribute.String("caller.role", role))
		}
		if tenantID := GetTenantID(c); tenantID != "" {
			attrs = append(attrs, attribute.String("tenant_id", tenantID))
		}
		if databaseID := logger.GetDatabaseID(ctx); databaseID != "" {
			attrs = append(attrs, attribute.String("tenant.database_id", databaseID))
		}
		span.SetAttributes(attrs...)

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			span.SetAttributes(attribute.Bool("http.client_error", true))
		} else if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
