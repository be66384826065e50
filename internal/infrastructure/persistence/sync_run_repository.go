package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// GormSyncRunRepository implements SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Create stores a new run. A reused idempotency key yields a ConflictError.
func (r *GormSyncRunRepository) Create(ctx context.Context, run *integration.SyncRun) error {
	model := &models.SyncRunModel{}
	model.FromDomain(run)
	err := r.db.WithContext(ctx).Create(model).Error
	if isDuplicateKey(err) {
		return &integration.ConflictError{Entity: "sync_run", ID: run.IdempotencyKey}
	}
	return err
}

// Update saves the run's progress and outcome
func (r *GormSyncRunRepository) Update(ctx context.Context, run *integration.SyncRun) error {
	model := &models.SyncRunModel{}
	model.FromDomain(run)
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ?", run.ID).
		Select("*").
		Omit("id", "marketplace", "kind", "idempotency_key", "started_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrRunNotFound
	}
	return nil
}

// FindByID finds a run by its ID
func (r *GormSyncRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns runs matching the filter, newest first unless sorted otherwise, and the total count
func (r *GormSyncRunRepository) List(ctx context.Context, filter integration.SyncRunFilter) ([]integration.SyncRun, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncRunModel{})
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", string(filter.Marketplace))
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", string(filter.Outcome))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncRunModel
	if err := query.
		Order(syncRunSorting.by(filter.OrderBy, filter.OrderDir)).
		Offset(offset(filter.Page, filter.PageSize)).
		Limit(pageSize(filter.PageSize)).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	runs := make([]integration.SyncRun, len(rows))
	for i := range rows {
		runs[i] = *rows[i].ToDomain()
	}
	return runs, total, nil
}

// Ensure GormSyncRunRepository implements SyncRunRepository
var _ integration.SyncRunRepository = (*GormSyncRunRepository)(nil)
