package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// GormSyncStateRepository stores committed watermarks in sync_state.
// Watermarks never move backwards: the upsert only applies when the new
// position is strictly after the stored one.
type GormSyncStateRepository struct {
	db *gorm.DB
}

// NewGormSyncStateRepository creates a new GormSyncStateRepository
func NewGormSyncStateRepository(db *gorm.DB) *GormSyncStateRepository {
	return &GormSyncStateRepository{db: db}
}

// GetWatermark returns the committed watermark, or the zero watermark
func (r *GormSyncStateRepository) GetWatermark(ctx context.Context, marketplace integration.MarketplaceID, kind integration.RunKind) (integration.Watermark, error) {
	var model models.SyncStateModel
	err := r.db.WithContext(ctx).
		Where("marketplace = ? AND kind = ?", string(marketplace), string(kind)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return integration.Watermark{}, nil
	}
	if err != nil {
		return integration.Watermark{}, err
	}
	return integration.Watermark{At: model.WatermarkAt.UTC(), Key: model.WatermarkKey}, nil
}

// AdvanceWatermark stores w unless the stored watermark is already at or past it
func (r *GormSyncStateRepository) AdvanceWatermark(ctx context.Context, marketplace integration.MarketplaceID, kind integration.RunKind, w integration.Watermark) error {
	model := &models.SyncStateModel{
		Marketplace:  string(marketplace),
		Kind:         string(kind),
		WatermarkAt:  w.At.UTC(),
		WatermarkKey: w.Key,
		UpdatedAt:    time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "marketplace"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"watermark_at", "watermark_key", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("sync_state.watermark_at < excluded.watermark_at OR " +
				"(sync_state.watermark_at = excluded.watermark_at AND sync_state.watermark_key < excluded.watermark_key)"),
		}},
	}).Create(model).Error
}

// ListStates returns every stored watermark
func (r *GormSyncStateRepository) ListStates(ctx context.Context) ([]models.SyncStateModel, error) {
	var rows []models.SyncStateModel
	if err := r.db.WithContext(ctx).Order("marketplace, kind").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Ensure GormSyncStateRepository implements SyncStateRepository
var _ integration.SyncStateRepository = (*GormSyncStateRepository)(nil)
