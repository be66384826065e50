package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// GormQuarantineRepository implements QuarantineRepository using GORM
type GormQuarantineRepository struct {
	db *gorm.DB
}

// NewGormQuarantineRepository creates a new GormQuarantineRepository
func NewGormQuarantineRepository(db *gorm.DB) *GormQuarantineRepository {
	return &GormQuarantineRepository{db: db}
}

// Create stores a quarantine record
func (r *GormQuarantineRepository) Create(ctx context.Context, record *integration.QuarantineRecord) error {
	return r.db.WithContext(ctx).Create(models.QuarantineRecordModelFromDomain(record)).Error
}

// FindByID finds a quarantine record by its ID
func (r *GormQuarantineRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.QuarantineRecord, error) {
	var model models.QuarantineRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrQuarantineNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Update saves the status and resolution of a record
func (r *GormQuarantineRepository) Update(ctx context.Context, record *integration.QuarantineRecord) error {
	result := r.db.WithContext(ctx).
		Model(&models.QuarantineRecordModel{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"status":      string(record.Status),
			"resolved_by": record.ResolvedBy,
			"resolved_at": record.ResolvedAt,
			"archive_key": record.ArchiveKey,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrQuarantineNotFound
	}
	return nil
}

// List returns records matching the filter, newest first, and the total count
func (r *GormQuarantineRepository) List(ctx context.Context, filter integration.QuarantineFilter) ([]integration.QuarantineRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.QuarantineRecordModel{})
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", string(filter.Marketplace))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Reason != "" {
		query = query.Where("reason = ?", string(filter.Reason))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.QuarantineRecordModel
	if err := query.
		Order("created_at DESC").
		Offset(offset(filter.Page, filter.PageSize)).
		Limit(pageSize(filter.PageSize)).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	records := make([]integration.QuarantineRecord, len(rows))
	for i := range rows {
		records[i] = *rows[i].ToDomain()
	}
	return records, total, nil
}

// Ensure GormQuarantineRepository implements QuarantineRepository
var _ integration.QuarantineRepository = (*GormQuarantineRepository)(nil)
