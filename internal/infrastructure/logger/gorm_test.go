package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)

	changed, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)

	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, changed.logLevel)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return "SELECT 1", 1 }
	ctx := WithDatabaseID(context.Background(), "acme")

	t.Run("error carries database id", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Warn)

		gl.Trace(ctx, time.Now(), query, errors.New("boom"))

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
		assert.Equal(t, "acme", logs[0].ContextMap()["database_id"])
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Warn)

		gl.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)

		assert.Empty(t, recorded.All())
	})

	t.Run("slow query warns", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Warn, WithSlowThreshold(time.Millisecond))

		gl.Trace(ctx, time.Now().Add(-time.Second), query, nil)

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
		assert.Contains(t, logs[0].Message, "SLOW SQL")
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Silent)

		gl.Trace(ctx, time.Now(), query, errors.New("boom"))

		assert.Empty(t, recorded.All())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("info-ish"))
}
