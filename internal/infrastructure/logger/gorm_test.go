package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestParseGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, ParseGormLevel("silent"))
	assert.Equal(t, gormlogger.Error, ParseGormLevel("error"))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel("warn"))
	assert.Equal(t, gormlogger.Info, ParseGormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel("bogus"))
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		begin   time.Time
		err     error
		wantMsg string
		want    zapcore.Level
	}{
		{"error", gormlogger.Error, now, errors.New("deadlock detected"), "SQL error", zapcore.ErrorLevel},
		{"slow", gormlogger.Warn, now.Add(-time.Second), nil, "Slow SQL", zapcore.WarnLevel},
		{"info", gormlogger.Info, now, nil, "SQL", zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, logs := newObservedLogger()
			l := NewGormLogger(base, tt.level, WithSlowThreshold(100*time.Millisecond))

			l.Trace(ctx, tt.begin, statement(`SELECT * FROM "orders"`, 3), tt.err)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, tt.want, entry.Level)
			assert.Equal(t, `SELECT * FROM "orders"`, entry.ContextMap()["sql"])
		})
	}
}

func TestGormLogger_TraceSuppressed(t *testing.T) {
	base, logs := newObservedLogger()
	ctx := context.Background()

	NewGormLogger(base, gormlogger.Warn).Trace(ctx, time.Now(), statement("SELECT 1", 1), nil)
	NewGormLogger(base, gormlogger.Error).Trace(ctx, time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)
	NewGormLogger(base, gormlogger.Silent).Trace(ctx, time.Now(), statement("SELECT 1", 0), errors.New("boom"))
	NewGormLogger(base, gormlogger.Error).LogMode(gormlogger.Silent).Trace(ctx, time.Now(), statement("SELECT 1", 0), errors.New("boom"))

	assert.Zero(t, logs.Len())
}

func TestGormLogger_UsesRunLogger(t *testing.T) {
	base, logs := newObservedLogger()
	ctx, _ := WithRun(context.Background(), base, "run-7", "playauto-main", "inventory")

	NewGormLogger(base, gormlogger.Error).Trace(ctx, time.Now(), statement(`UPDATE "skus"`, 0), errors.New("conflict"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "run-7", logs.All()[0].ContextMap()["run_id"])
	assert.Equal(t, "gorm", logs.All()[0].LoggerName)
}
