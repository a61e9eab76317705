package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_NotFound(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestL_EnrichesWithContextFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTenantID(ctx, "8d5d8c1e-0f5b-4e5e-9b0c-3f1f3c7b8a11")
	ctx = WithDatabaseID(ctx, "acme")

	L(ctx).Info("resolved")

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "8d5d8c1e-0f5b-4e5e-9b0c-3f1f3c7b8a11", fields["tenant_id"])
	assert.Equal(t, "acme", fields["database_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestL_AddsTraceIDs(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	With(ctx, zap.New(core)).Info("traced")

	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}

func TestGetters_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetTenantID(ctx))
	assert.Empty(t, GetDatabaseID(ctx))
}
