package telemetry

import (
	"context"

	"gorm.io/gorm"

	"github.com/marketsync/backend/internal/domain/integration"
)

// GormSyncBacklogProvider implements SyncBacklogProvider using GORM.
// It queries the quarantine_records and sync_runs tables directly.
type GormSyncBacklogProvider struct {
	db *gorm.DB
}

// NewGormSyncBacklogProvider creates a new GormSyncBacklogProvider.
func NewGormSyncBacklogProvider(db *gorm.DB) *GormSyncBacklogProvider {
	return &GormSyncBacklogProvider{db: db}
}

// OpenQuarantineByMarketplace returns open quarantine records per marketplace.
func (p *GormSyncBacklogProvider) OpenQuarantineByMarketplace(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Marketplace string `gorm:"column:marketplace"`
		OpenCount   int64  `gorm:"column:open_count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("quarantine_records").
		Select("marketplace, COUNT(*) AS open_count").
		Where("status = ?", string(integration.QuarantineStatusOpen)).
		Group("marketplace").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Marketplace] = r.OpenCount
	}
	return m, nil
}

// PairsNeedingAttention counts pairs whose most recent finished run was
// partial or escalated to manual intervention.
func (p *GormSyncBacklogProvider) PairsNeedingAttention(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).Raw(`
SELECT COUNT(*) FROM sync_runs r
WHERE r.outcome <> ?
  AND (r.needs_attention OR r.manual_intervention)
  AND r.started_at = (
    SELECT MAX(s.started_at) FROM sync_runs s
    WHERE s.marketplace = r.marketplace AND s.kind = r.kind AND s.outcome <> ?
  )`, string(integration.RunOutcomeRunning), string(integration.RunOutcomeRunning)).
		Scan(&count).Error
	return count, err
}

var _ SyncBacklogProvider = (*GormSyncBacklogProvider)(nil)
