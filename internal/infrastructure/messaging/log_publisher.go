package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// LogPublisher writes sync events to the log when no broker is configured
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishRunCompleted(_ context.Context, run *integration.SyncRun) error {
	p.logger.Info("Sync run completed",
		zap.String("run_id", run.ID.String()),
		zap.String("marketplace", run.Marketplace.String()),
		zap.String("kind", string(run.Kind)),
		zap.String("outcome", string(run.Outcome)),
		zap.Bool("needs_attention", run.NeedsAttention),
	)
	return nil
}

func (p *LogPublisher) PublishRunEscalated(_ context.Context, run *integration.SyncRun, reason string) error {
	p.logger.Error("Sync pair escalated to manual intervention",
		zap.String("run_id", run.ID.String()),
		zap.String("marketplace", run.Marketplace.String()),
		zap.String("kind", string(run.Kind)),
		zap.String("error_class", string(run.ErrorClass)),
		zap.String("reason", reason),
	)
	return nil
}

func (p *LogPublisher) PublishRecordQuarantined(_ context.Context, record *integration.QuarantineRecord) error {
	p.logger.Warn("Record quarantined",
		zap.String("quarantine_id", record.ID.String()),
		zap.String("marketplace", record.Marketplace.String()),
		zap.String("external_ref", record.ExternalRef),
		zap.String("reason", string(record.Reason)),
	)
	return nil
}

var _ integration.SyncEventPublisher = (*LogPublisher)(nil)
