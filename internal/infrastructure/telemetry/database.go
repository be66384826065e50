package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queryStartKey = "telemetry:query_start"

// DBConfig selects which database instrumentation is installed.
type DBConfig struct {
	// Tracing registers otelgorm so every statement gets a client span.
	Tracing bool
	// IncludeQueryVars keeps bound values in traced SQL. Development only.
	IncludeQueryVars bool
	// SlowQuery is the duration above which statements count as slow.
	SlowQuery time.Duration
}

// InstrumentDatabase registers tracing and query metrics on db. Metrics are
// skipped when mp is nil or disabled.
func InstrumentDatabase(db *gorm.DB, cfg DBConfig, mp *MeterProvider, logger *zap.Logger) error {
	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName("marketsync")}
		if !cfg.IncludeQueryVars {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
		logger.Info("Database tracing enabled", zap.Bool("query_vars", cfg.IncludeQueryVars))
	}

	if mp == nil || !mp.IsEnabled() {
		return nil
	}
	plugin, err := newQueryMetrics(mp.Meter("marketsync.db"), cfg.SlowQuery)
	if err != nil {
		return err
	}
	if err := db.Use(plugin); err != nil {
		return err
	}
	if err := observePool(mp.Meter("marketsync.db"), db); err != nil {
		return err
	}
	logger.Info("Database metrics enabled", zap.Duration("slow_query", plugin.slow))
	return nil
}

// queryMetrics is a gorm plugin that times every statement.
type queryMetrics struct {
	total    *Counter
	slowOnes *Counter
	duration *Histogram
	slow     time.Duration
}

func newQueryMetrics(meter metric.Meter, slow time.Duration) (*queryMetrics, error) {
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	total, err := NewCounter(meter, "db_query_total", "Database statements by operation and table", "{query}")
	if err != nil {
		return nil, err
	}
	slowOnes, err := NewCounter(meter, "db_slow_query_total", "Database statements slower than the slow query threshold", "{query}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &queryMetrics{total: total, slowOnes: slowOnes, duration: duration, slow: slow}, nil
}

func (*queryMetrics) Name() string { return "marketsync:query_metrics" }

func (q *queryMetrics) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("metrics:before_"+h.op, startTimer); err != nil {
			return err
		}
		if err := h.after("metrics:after_"+h.op, q.observe(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func startTimer(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

func (q *queryMetrics) observe(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(queryStartKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		result := "ok"
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			result = "error"
		}
		attrs := []attribute.KeyValue{
			AttrDBOperation.String(op),
			AttrDBTable.String(db.Statement.Table),
		}
		q.total.Inc(ctx, append(attrs, AttrResult.String(result))...)
		q.duration.RecordDuration(ctx, elapsed, attrs...)
		if elapsed > q.slow {
			q.slowOnes.Inc(ctx, attrs...)
		}
	}
}

// observePool exports connection pool occupancy on every collection.
func observePool(meter metric.Meter, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	_, err = meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			st := sqlDB.Stats()
			o.Observe(int64(st.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
			o.Observe(int64(st.Idle), metric.WithAttributes(AttrDBState.String("idle")))
			o.Observe(int64(st.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
			return nil
		}),
	)
	return err
}
