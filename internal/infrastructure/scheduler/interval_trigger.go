package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// Start starts one interval trigger per configured schedule. Each trigger
// fires immediately and then once per interval.
func (o *SyncOrchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrOrchestratorStopped
	}
	if o.ticking {
		o.mu.Unlock()
		return nil
	}
	o.ticking = true
	baseCtx := o.baseCtx
	o.mu.Unlock()

	for _, s := range o.config.Schedules {
		o.tickersWG.Add(1)
		go o.runLoop(ctx, baseCtx, s)
	}

	o.logger.Info("Sync orchestrator started",
		zap.Int("schedules", len(o.config.Schedules)),
		zap.Duration("run_timeout", o.config.RunTimeout),
		zap.Int("max_transient_retries", o.config.MaxTransientRetries),
		zap.Int("max_partial_retries", o.config.MaxPartialRetries),
	)
	return nil
}

// Stop cancels in-flight runs at their next checkpoint, disarms pending
// retries and waits for runs to record their outcome
func (o *SyncOrchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	for _, p := range o.pairs {
		p.cancelRetry()
	}
	o.mu.Unlock()

	o.cancel()

	done := make(chan struct{})
	go func() {
		o.tickersWG.Wait()
		o.runWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("Sync orchestrator stopped gracefully")
		return nil
	case <-ctx.Done():
		o.logger.Warn("Sync orchestrator stop timed out")
		return ctx.Err()
	}
}

// runLoop periodically triggers one pair
func (o *SyncOrchestrator) runLoop(ctx, baseCtx context.Context, s Schedule) {
	defer o.tickersWG.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	o.tick(baseCtx, s)

	for {
		select {
		case <-ctx.Done():
			return
		case <-baseCtx.Done():
			return
		case <-ticker.C:
			o.tick(baseCtx, s)
		}
	}
}

func (o *SyncOrchestrator) tick(ctx context.Context, s Schedule) {
	if _, err := o.TriggerRun(ctx, s.Marketplace, s.Kind, integration.RunTriggerSchedule); err != nil {
		if ctx.Err() != nil {
			return
		}
		o.logger.Error("Scheduled sync trigger failed",
			zap.String("marketplace", s.Marketplace.String()),
			zap.String("kind", s.Kind.String()),
			zap.Error(err),
		)
	}
}
