package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

// SKUModel is the persistence model for an internal stock record
type SKUModel struct {
	AggregateModel
	Code        string `gorm:"type:varchar(100);not null;uniqueIndex:idx_listing_skus_code"`
	ProductName string `gorm:"type:varchar(255);not null"`
	Quantity    int    `gorm:"not null;default:0"`
	SafetyStock int    `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (SKUModel) TableName() string {
	return "listing_skus"
}

// ToDomain converts the model to a ListingSKU without a mapping
func (m *SKUModel) ToDomain() *integration.ListingSKU {
	return &integration.ListingSKU{
		ID:          m.ID,
		Code:        m.Code,
		ProductName: m.ProductName,
		Quantity:    m.Quantity,
		SafetyStock: m.SafetyStock,
		Version:     m.Version,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the model from a ListingSKU
func (m *SKUModel) FromDomain(s *integration.ListingSKU) {
	m.ID = s.ID
	m.Code = s.Code
	m.ProductName = s.ProductName
	m.Quantity = s.Quantity
	m.SafetyStock = s.SafetyStock
	m.Version = s.Version
	m.UpdatedAt = s.UpdatedAt
}

// SKUMappingModel ties a SKU to one external SKU per marketplace
type SKUMappingModel struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primary_key"`
	SKUID              uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_sku_mappings_sku_marketplace,priority:1"`
	Marketplace        string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_sku_mappings_sku_marketplace,priority:2;uniqueIndex:idx_sku_mappings_external,priority:1"`
	ExternalSKU        string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_sku_mappings_external,priority:2"`
	LastSyncedQuantity int        `gorm:"not null;default:0"`
	LastSyncedAt       *time.Time
	CreatedAt          time.Time  `gorm:"not null"`
	UpdatedAt          time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SKUMappingModel) TableName() string {
	return "sku_mappings"
}

// ToDomain converts the model to a domain SKUMapping
func (m *SKUMappingModel) ToDomain() *integration.SKUMapping {
	return &integration.SKUMapping{
		ID:                 m.ID,
		SKUID:              m.SKUID,
		Marketplace:        integration.MarketplaceID(m.Marketplace),
		ExternalSKU:        m.ExternalSKU,
		LastSyncedQuantity: m.LastSyncedQuantity,
		LastSyncedAt:       m.LastSyncedAt,
	}
}

// MappedSKURow is the result row of a SKU joined with its mapping
type MappedSKURow struct {
	SKUModel
	MappingID          uuid.UUID
	Marketplace        string
	ExternalSKU        string
	LastSyncedQuantity int
	LastSyncedAt       *time.Time
}

// ToDomain converts the joined row to a ListingSKU with its mapping attached
func (r *MappedSKURow) ToDomain() *integration.ListingSKU {
	sku := r.SKUModel.ToDomain()
	sku.Mapping = &integration.SKUMapping{
		ID:                 r.MappingID,
		SKUID:              r.ID,
		Marketplace:        integration.MarketplaceID(r.Marketplace),
		ExternalSKU:        r.ExternalSKU,
		LastSyncedQuantity: r.LastSyncedQuantity,
		LastSyncedAt:       r.LastSyncedAt,
	}
	return sku
}

// InventoryHistoryModel is one applied quantity change
type InventoryHistoryModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key"`
	SKUID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_inventory_history_sku"`
	Before    int        `gorm:"column:quantity_before;not null"`
	After     int        `gorm:"column:quantity_after;not null"`
	Change    int        `gorm:"column:quantity_change;not null"`
	Reason    string     `gorm:"type:varchar(20);not null"`
	RunID     *uuid.UUID `gorm:"type:uuid;index:idx_inventory_history_run"`
	CreatedAt time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InventoryHistoryModel) TableName() string {
	return "inventory_history"
}

// InventoryHistoryModelFromDomain creates a model from a history entry
func InventoryHistoryModelFromDomain(h integration.InventoryHistory) *InventoryHistoryModel {
	id := h.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &InventoryHistoryModel{
		ID:        id,
		SKUID:     h.SKUID,
		Before:    h.Before,
		After:     h.After,
		Change:    h.Change(),
		Reason:    string(h.Reason),
		RunID:     h.RunID,
		CreatedAt: h.CreatedAt,
	}
}

// ToDomain converts the model to a history entry
func (m *InventoryHistoryModel) ToDomain() integration.InventoryHistory {
	return integration.InventoryHistory{
		ID:        m.ID,
		SKUID:     m.SKUID,
		Before:    m.Before,
		After:     m.After,
		Reason:    integration.StockChangeReason(m.Reason),
		RunID:     m.RunID,
		CreatedAt: m.CreatedAt,
	}
}
