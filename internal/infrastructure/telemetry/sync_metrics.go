package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// SyncMetrics records sync run, credential and quarantine metrics.
// It satisfies the orchestrator's run recorder and the credential manager's
// token refresh recorder.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	runsTotal          *Counter
	runDuration        *Histogram
	recordsTotal       *Counter
	escalationsTotal   *Counter
	tokenRefreshTotal  *Counter
	tokenRefreshTries  *Histogram
	quarantineBacklog  *Gauge
	attentionPairs     *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	backlogProvider SyncBacklogProvider
}

// SyncBacklogProvider reports the review backlog for periodic gauges.
type SyncBacklogProvider interface {
	// OpenQuarantineByMarketplace returns open quarantine records per marketplace
	OpenQuarantineByMarketplace(ctx context.Context) (map[string]int64, error)
	// PairsNeedingAttention returns pairs whose last run ended partial or escalated
	PairsNeedingAttention(ctx context.Context) (int64, error)
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	BacklogProvider SyncBacklogProvider
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	var err error
	sm.runsTotal, err = NewCounter(cfg.Meter,
		"marketsync_sync_runs_total",
		"Total number of finished sync runs",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	sm.runDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "marketsync_sync_run_duration_seconds",
		Description: "Wall time of finished sync runs",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.recordsTotal, err = NewCounter(cfg.Meter,
		"marketsync_sync_records_total",
		"Records handled by sync runs, by disposition",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	sm.escalationsTotal, err = NewCounter(cfg.Meter,
		"marketsync_sync_escalations_total",
		"Runs that stopped retrying and require manual intervention",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	sm.tokenRefreshTotal, err = NewCounter(cfg.Meter,
		"marketsync_token_refresh_total",
		"Marketplace access token refreshes",
		"{refreshes}",
	)
	if err != nil {
		return nil, err
	}

	sm.tokenRefreshTries, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "marketsync_token_refresh_attempts",
		Description: "Attempts needed per token refresh",
		Unit:        "{attempts}",
		Boundaries:  []float64{1, 2, 3, 5},
	})
	if err != nil {
		return nil, err
	}

	sm.quarantineBacklog, err = NewGauge(cfg.Meter,
		"marketsync_quarantine_open",
		"Open quarantine records awaiting review",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	sm.attentionPairs, err = NewGauge(cfg.Meter,
		"marketsync_pairs_needing_attention",
		"Marketplace and kind pairs whose last run needs an operator",
		"{pairs}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// =============================================================================
// Run Metrics
// =============================================================================

// RecordRun records a closed sync run.
func (sm *SyncMetrics) RecordRun(ctx context.Context, run *integration.SyncRun) {
	if run == nil {
		return
	}
	pair := []attribute.KeyValue{
		AttrMarketplace.String(run.Marketplace.String()),
		AttrRunKind.String(string(run.Kind)),
	}

	sm.runsTotal.Inc(ctx, append(pair,
		AttrRunTrigger.String(string(run.Trigger)),
		AttrRunOutcome.String(string(run.Outcome)),
		AttrErrorClass.String(string(run.ErrorClass)),
	)...)

	if run.FinishedAt != nil {
		sm.runDuration.RecordDuration(ctx, run.FinishedAt.Sub(run.StartedAt), append(pair,
			AttrRunOutcome.String(string(run.Outcome)),
		)...)
	}

	dispositions := map[string]int{
		"succeeded":   run.Report.Succeeded,
		"unchanged":   run.Report.Unchanged,
		"skipped":     run.Report.Skipped,
		"quarantined": run.Report.Quarantined,
		"failed":      run.Report.Failed,
		"drifted":     run.Report.Drifted,
	}
	for disposition, n := range dispositions {
		if n == 0 {
			continue
		}
		sm.recordsTotal.Add(ctx, int64(n), append(pair, AttrDisposition.String(disposition))...)
	}

	if run.ManualIntervention {
		sm.escalationsTotal.Inc(ctx, append(pair, AttrErrorClass.String(string(run.ErrorClass)))...)
	}
}

// RecordTokenRefresh records one credential refresh and how many attempts it took.
func (sm *SyncMetrics) RecordTokenRefresh(ctx context.Context, marketplace integration.MarketplaceID, attempts int, err error) {
	result := "success"
	if err != nil {
		result = string(integration.Classify(err))
	}
	attrs := []attribute.KeyValue{
		AttrMarketplace.String(marketplace.String()),
		AttrResult.String(result),
	}
	sm.tokenRefreshTotal.Inc(ctx, attrs...)
	sm.tokenRefreshTries.Record(ctx, float64(attempts), attrs...)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of backlog gauges.
// This is non-blocking - use Stop() to stop collection.
func (sm *SyncMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go sm.runPeriodicCollection(ctx, interval)
	})
}

func (sm *SyncMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sm.collectBacklog(ctx)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic sync metrics collection")
			return
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, stopping periodic sync metrics collection")
			return
		case <-ticker.C:
			sm.collectBacklog(ctx)
		}
	}
}

func (sm *SyncMetrics) collectBacklog(ctx context.Context) {
	if sm.backlogProvider == nil {
		sm.logger.Debug("No backlog provider configured, skipping backlog metrics collection")
		return
	}

	open, err := sm.backlogProvider.OpenQuarantineByMarketplace(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count open quarantine records", zap.Error(err))
	} else {
		for marketplace, n := range open {
			sm.quarantineBacklog.Record(ctx, n, AttrMarketplace.String(marketplace))
		}
	}

	pairs, err := sm.backlogProvider.PairsNeedingAttention(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count pairs needing attention", zap.Error(err))
		return
	}
	sm.attentionPairs.Record(ctx, pairs)
}

// Stop stops the periodic collection.
func (sm *SyncMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
