package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// GormSKURepository implements SKURepository using GORM.
// Every quantity write is a compare-and-set on listing_skus.version.
type GormSKURepository struct {
	db *gorm.DB
}

// NewGormSKURepository creates a new GormSKURepository
func NewGormSKURepository(db *gorm.DB) *GormSKURepository {
	return &GormSKURepository{db: db}
}

const mappedSKUColumns = "listing_skus.*, sku_mappings.id AS mapping_id, sku_mappings.marketplace, " +
	"sku_mappings.external_sku, sku_mappings.last_synced_quantity, sku_mappings.last_synced_at"

func (r *GormSKURepository) mappedQuery(ctx context.Context, marketplace integration.MarketplaceID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.SKUModel{}).
		Select(mappedSKUColumns).
		Joins("JOIN sku_mappings ON sku_mappings.sku_id = listing_skus.id").
		Where("sku_mappings.marketplace = ? AND sku_mappings.external_sku <> ''", string(marketplace))
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// ListMapped returns every SKU mapped to the marketplace, ordered by code
func (r *GormSKURepository) ListMapped(ctx context.Context, marketplace integration.MarketplaceID) ([]integration.ListingSKU, error) {
	var rows []models.MappedSKURow
	if err := r.mappedQuery(ctx, marketplace).Order("listing_skus.code ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	skus := make([]integration.ListingSKU, len(rows))
	for i := range rows {
		skus[i] = *rows[i].ToDomain()
	}
	return skus, nil
}

// FindMapped finds the SKU mapped to an external SKU on the marketplace
func (r *GormSKURepository) FindMapped(ctx context.Context, marketplace integration.MarketplaceID, externalSKU string) (*integration.ListingSKU, error) {
	var rows []models.MappedSKURow
	if err := r.mappedQuery(ctx, marketplace).
		Where("sku_mappings.external_sku = ?", externalSKU).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, integration.ErrSKUNotFound
	}
	return rows[0].ToDomain(), nil
}

// FindByID finds a SKU by its ID. The mapping is not loaded.
func (r *GormSKURepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.ListingSKU, error) {
	var model models.SKUModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSKUNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListHistory returns the most recent inventory history entries of a SKU
func (r *GormSKURepository) ListHistory(ctx context.Context, skuID uuid.UUID, limit int) ([]integration.InventoryHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.InventoryHistoryModel
	if err := r.db.WithContext(ctx).
		Where("sku_id = ?", skuID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.InventoryHistory, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Save creates or fully updates a SKU and, when present, its mapping.
// Used for catalog seeding; sync code paths only use the CAS methods.
func (r *GormSKURepository) Save(ctx context.Context, sku *integration.ListingSKU) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		model := &models.SKUModel{}
		model.FromDomain(sku)
		if model.Version == 0 {
			model.Version = 1
		}
		if model.CreatedAt.IsZero() {
			model.CreatedAt = now
		}
		model.UpdatedAt = now
		if err := tx.Save(model).Error; err != nil {
			return err
		}
		sku.Version = model.Version

		if sku.Mapping == nil {
			return nil
		}
		if sku.Mapping.ID == uuid.Nil {
			sku.Mapping.ID = uuid.New()
		}
		sku.Mapping.SKUID = sku.ID
		mapping := &models.SKUMappingModel{
			ID:                 sku.Mapping.ID,
			SKUID:              sku.ID,
			Marketplace:        string(sku.Mapping.Marketplace),
			ExternalSKU:        sku.Mapping.ExternalSKU,
			LastSyncedQuantity: sku.Mapping.LastSyncedQuantity,
			LastSyncedAt:       sku.Mapping.LastSyncedAt,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sku_id"}, {Name: "marketplace"}},
			DoUpdates: clause.AssignmentColumns([]string{"external_sku", "last_synced_quantity", "last_synced_at", "updated_at"}),
		}).Create(mapping).Error
	})
}

// CompareAndSetQuantity writes a new quantity if the SKU is still at expectedVersion
func (r *GormSKURepository) CompareAndSetQuantity(ctx context.Context, id uuid.UUID, expectedVersion, quantity int) (int, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SKUModel{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"quantity":   quantity,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, r.casFailure(ctx, r.db, id)
	}
	return expectedVersion + 1, nil
}

// CompareAndSetSynced records the value sent to or observed from the marketplace.
// The SKU row is locked at expectedVersion for the duration of the mapping write.
func (r *GormSKURepository) CompareAndSetSynced(ctx context.Context, skuID uuid.UUID, marketplace integration.MarketplaceID, expectedVersion, syncedQuantity int, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked []models.SKUModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND version = ?", skuID, expectedVersion).
			Limit(1).
			Find(&locked).Error; err != nil {
			return err
		}
		if len(locked) == 0 {
			return r.casFailure(ctx, tx, skuID)
		}
		return r.writeSynced(tx, skuID, marketplace, syncedQuantity, at)
	})
}

// PullQuantity sets quantity and last synced quantity to the marketplace value in one transaction
func (r *GormSKURepository) PullQuantity(ctx context.Context, skuID uuid.UUID, marketplace integration.MarketplaceID, expectedVersion, quantity int, at time.Time) (int, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.SKUModel{}).
			Where("id = ? AND version = ?", skuID, expectedVersion).
			Updates(map[string]any{
				"quantity":   quantity,
				"version":    gorm.Expr("version + 1"),
				"updated_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.casFailure(ctx, tx, skuID)
		}
		return r.writeSynced(tx, skuID, marketplace, quantity, at)
	})
	if err != nil {
		return 0, err
	}
	return expectedVersion + 1, nil
}

// AppendHistory stores an inventory history entry
func (r *GormSKURepository) AppendHistory(ctx context.Context, entry integration.InventoryHistory) error {
	return r.db.WithContext(ctx).Create(models.InventoryHistoryModelFromDomain(entry)).Error
}

func (r *GormSKURepository) writeSynced(tx *gorm.DB, skuID uuid.UUID, marketplace integration.MarketplaceID, quantity int, at time.Time) error {
	result := tx.Model(&models.SKUMappingModel{}).
		Where("sku_id = ? AND marketplace = ?", skuID, string(marketplace)).
		Updates(map[string]any{
			"last_synced_quantity": quantity,
			"last_synced_at":       at,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrSKUNotFound
	}
	return nil
}

// casFailure tells a missing SKU apart from a version mismatch
func (r *GormSKURepository) casFailure(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.SKUModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return integration.ErrSKUNotFound
	}
	return &integration.ConflictError{Entity: "sku", ID: id.String()}
}

// Ensure GormSKURepository implements SKURepository
var _ integration.SKURepository = (*GormSKURepository)(nil)
