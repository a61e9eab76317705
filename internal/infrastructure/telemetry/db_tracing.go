package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database query tracing.
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL keeps bind variables in span statements; development only
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider
}

const slowQueryStartKey = "telemetry:query_start"

// InstrumentDB attaches otelgorm to a tenant database handle. Spans carry the
// database id as db.name, so queries of different tenants can be told apart,
// and queries slower than SlowQueryThresh are flagged.
func InstrumentDB(db *gorm.DB, databaseID string, cfg DBTracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(databaseID),
		otelgorm.WithAttributes(attribute.String("tenant.database_id", databaseID)),
	}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if cfg.SlowQueryThresh <= 0 {
		return nil
	}
	return registerSlowQueryCallbacks(db, cfg.SlowQueryThresh)
}

func registerSlowQueryCallbacks(db *gorm.DB, threshold time.Duration) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(slowQueryStartKey, time.Now())
	}
	after := func(tx *gorm.DB) {
		start, ok := tx.InstanceGet(slowQueryStartKey)
		if !ok {
			return
		}
		elapsed := time.Since(start.(time.Time))
		if elapsed <= threshold {
			return
		}
		span := trace.SpanFromContext(tx.Statement.Context)
		if !span.IsRecording() {
			return
		}
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("telemetry:before_create", before),
		cb.Query().Before("gorm:query").Register("telemetry:before_query", before),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", before),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", before),
		cb.Row().Before("gorm:row").Register("telemetry:before_row", before),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", before),
		cb.Create().After("gorm:create").Register("telemetry:after_create", after),
		cb.Query().After("gorm:query").Register("telemetry:after_query", after),
		cb.Update().After("gorm:update").Register("telemetry:after_update", after),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", after),
		cb.Row().After("gorm:row").Register("telemetry:after_row", after),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", after),
	)
}
