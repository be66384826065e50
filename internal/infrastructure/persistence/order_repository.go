package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindMapping finds the mapping of an external order
func (r *GormOrderRepository) FindMapping(ctx context.Context, marketplace integration.MarketplaceID, externalOrderID string) (*integration.ExternalOrderMapping, error) {
	var model models.ExternalOrderMappingModel
	if err := r.db.WithContext(ctx).
		Where("marketplace = ? AND external_order_id = ?", string(marketplace), externalOrderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// CreateWithMapping stores a new order and its external mapping in one transaction
func (r *GormOrderRepository) CreateWithMapping(ctx context.Context, order *integration.Order, mapping *integration.ExternalOrderMapping) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.OrderModelFromDomain(order)).Error; err != nil {
			return err
		}
		return tx.Create(models.ExternalOrderMappingModelFromDomain(mapping)).Error
	})
	if isDuplicateKey(err) {
		return &integration.ConflictError{Entity: "external_order_mapping", ID: mapping.ExternalOrderID}
	}
	return err
}

// UpdateWithMapping saves the order with optimistic locking and refreshes the mapping
func (r *GormOrderRepository) UpdateWithMapping(ctx context.Context, order *integration.Order, mapping *integration.ExternalOrderMapping) error {
	model := models.OrderModelFromDomain(order)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.OrderModel{}).
			Where("id = ? AND version = ?", order.ID, order.Version).
			Updates(map[string]any{
				"buyer_ref":      model.BuyerRef,
				"shop_code":      model.ShopCode,
				"total_amount":   model.TotalAmount,
				"ordered_at":     model.OrderedAt,
				"status":         model.Status,
				"items":          model.ItemsJSON,
				"status_history": model.HistoryJSON,
				"version":        gorm.Expr("version + 1"),
				"updated_at":     time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &integration.ConflictError{Entity: "order", ID: order.ID.String()}
		}

		if mapping == nil {
			return nil
		}
		return tx.Model(&models.ExternalOrderMappingModel{}).
			Where("id = ?", mapping.ID).
			Updates(map[string]any{
				"external_status": mapping.ExternalStatus,
				"checksum":        mapping.Checksum,
				"updated_at":      mapping.UpdatedAt,
			}).Error
	})
	if err != nil {
		return err
	}
	order.Version++
	return nil
}

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns orders matching the filter, newest first unless sorted otherwise, and the total count
func (r *GormOrderRepository) List(ctx context.Context, filter integration.OrderFilter) ([]integration.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.OrderModel{})
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", string(filter.Marketplace))
	}
	if filter.ShopCode != "" {
		query = query.Where("shop_code = ?", filter.ShopCode)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.Since != nil {
		query = query.Where("ordered_at >= ?", *filter.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.OrderModel
	if err := query.
		Order(orderSorting.by(filter.OrderBy, filter.OrderDir)).
		Offset(offset(filter.Page, filter.PageSize)).
		Limit(pageSize(filter.PageSize)).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	orders := make([]integration.Order, len(rows))
	for i := range rows {
		orders[i] = *rows[i].ToDomain()
	}
	return orders, total, nil
}

// Ensure GormOrderRepository implements OrderRepository
var _ integration.OrderRepository = (*GormOrderRepository)(nil)
