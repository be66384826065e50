package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultSafetyStock is the low-stock threshold used when a SKU has none configured
const DefaultSafetyStock = 10

// StockLevel classifies a quantity for badges and alerts
type StockLevel string

const (
	StockLevelInStock    StockLevel = "in_stock"
	StockLevelLowStock   StockLevel = "low_stock"
	StockLevelOutOfStock StockLevel = "out_of_stock"
)

// SKUMapping ties an internal SKU to zero-or-one external SKU on one marketplace
type SKUMapping struct {
	ID                 uuid.UUID
	SKUID              uuid.UUID
	Marketplace        MarketplaceID
	ExternalSKU        string
	LastSyncedQuantity int
	LastSyncedAt       *time.Time
}

// ListingSKU is an internal stock record together with its mapping for one marketplace.
// Version guards every quantity write (compare-and-set).
type ListingSKU struct {
	ID          uuid.UUID
	Code        string
	ProductName string
	Quantity    int
	SafetyStock int
	Version     int
	UpdatedAt   time.Time
	Mapping     *SKUMapping
}

// Delta is the local change since the last value sent to or observed from the marketplace
func (s *ListingSKU) Delta() int {
	if s.Mapping == nil {
		return 0
	}
	return s.Quantity - s.Mapping.LastSyncedQuantity
}

// IsMapped reports whether the SKU has an external counterpart
func (s *ListingSKU) IsMapped() bool {
	return s.Mapping != nil && s.Mapping.ExternalSKU != ""
}

// StockLevel classifies the current quantity against the safety stock
func (s *ListingSKU) StockLevel() StockLevel {
	return ClassifyStock(s.Quantity, s.SafetyStock)
}

// ClassifyStock returns the stock level for a quantity and threshold
func ClassifyStock(quantity, safetyStock int) StockLevel {
	if safetyStock <= 0 {
		safetyStock = DefaultSafetyStock
	}
	switch {
	case quantity <= 0:
		return StockLevelOutOfStock
	case quantity <= safetyStock:
		return StockLevelLowStock
	default:
		return StockLevelInStock
	}
}

// StockChangeReason explains an inventory history entry
type StockChangeReason string

const (
	StockChangeSale     StockChangeReason = "sale"
	StockChangeReturn   StockChangeReason = "return"
	StockChangeManual   StockChangeReason = "manual"
	StockChangeSyncPull StockChangeReason = "sync_pull"
)

// InventoryHistory records one applied quantity change
type InventoryHistory struct {
	ID        uuid.UUID
	SKUID     uuid.UUID
	Before    int
	After     int
	Reason    StockChangeReason
	RunID     *uuid.UUID
	CreatedAt time.Time
}

// Change returns After - Before
func (h InventoryHistory) Change() int {
	return h.After - h.Before
}

// SKURepository reads and conditionally writes stock records.
// CAS methods return a ConflictError when the expected version no longer matches.
type SKURepository interface {
	// ListMapped returns every SKU mapped to the marketplace with its mapping attached
	ListMapped(ctx context.Context, marketplace MarketplaceID) ([]ListingSKU, error)
	// FindMapped returns ErrSKUNotFound when no SKU maps to externalSKU
	FindMapped(ctx context.Context, marketplace MarketplaceID, externalSKU string) (*ListingSKU, error)
	// FindByID returns ErrSKUNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*ListingSKU, error)
	// CompareAndSetQuantity writes a new quantity if the SKU is still at expectedVersion
	CompareAndSetQuantity(ctx context.Context, id uuid.UUID, expectedVersion, quantity int) (newVersion int, err error)
	// CompareAndSetSynced records the value sent to or observed from the marketplace,
	// provided the SKU is still at expectedVersion
	CompareAndSetSynced(ctx context.Context, skuID uuid.UUID, marketplace MarketplaceID, expectedVersion, syncedQuantity int, at time.Time) error
	// PullQuantity sets both quantity and last synced quantity from the marketplace value
	PullQuantity(ctx context.Context, skuID uuid.UUID, marketplace MarketplaceID, expectedVersion, quantity int, at time.Time) (newVersion int, err error)
	// AppendHistory stores an inventory history entry
	AppendHistory(ctx context.Context, entry InventoryHistory) error
}
