package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestTracing_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(Tracing(TracingConfig{Enabled: false}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTracing_SpanCarriesCallerAndDatabase(t *testing.T) {
	tp, sr := setupTestTracer(t)
	acme, err := identity.NewTenant("Acme Rentals", "")
	require.NoError(t, err)
	resolver := tenant.NewResolver(stubRegistry{acme.ID: acme}, "control", nil)

	router := gin.New()
	router.Use(
		RequestID(),
		Tracing(TracingConfig{ServiceName: "leasehold-test", Enabled: true, TracerProvider: tp}),
		Caller(CallerConfig{Resolver: resolver}),
		SpanAttributes(),
	)
	router.GET("/invoices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	req := httptest.NewRequest(http.MethodGet, "/invoices/42", nil)
	req.Header.Set(TenantIDHeader, acme.ID.String())
	req.Header.Set(RequestIDHeader, "req-7")
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "/invoices/:id")
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "req-7", attrs["request_id"])
	assert.Equal(t, acme.ID.String(), attrs["tenant_id"])
	assert.Equal(t, "acme-rentals", attrs["tenant.database_id"])
	assert.Equal(t, identity.RoleStaff, attrs["caller.role"])

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	spans = sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
