package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketsync/backend/internal/domain/shared"
)

// StatusTransition is one entry of an order's status history
type StatusTransition struct {
	From         CanonicalStatus
	To           CanonicalStatus
	Source       TransitionSource
	ExternalCode string
	At           time.Time
}

// Order is the canonical internal order aggregate
type Order struct {
	shared.BaseAggregateRoot
	Marketplace MarketplaceID
	BuyerRef    string
	ShopCode    string
	TotalAmount decimal.Decimal
	OrderedAt   time.Time
	Status      CanonicalStatus
	Items       []LineItem
	History     []StatusTransition
}

// NewOrderFromExternal creates the canonical order for a freshly ingested external order.
// The history starts with a single external-sync entry.
func NewOrderFromExternal(ext *ExternalOrder, status CanonicalStatus, at time.Time) (*Order, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	items := make([]LineItem, len(ext.Items))
	copy(items, ext.Items)

	order := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(at),
		Marketplace:       ext.Marketplace,
		BuyerRef:          ext.BuyerRef,
		ShopCode:          ext.ShopCode,
		TotalAmount:       ext.TotalAmount,
		OrderedAt:         ext.OrderedAt,
		Status:            status,
		Items:             items,
		History: []StatusTransition{{
			To:           status,
			Source:       TransitionSourceExternalSync,
			ExternalCode: ext.StatusCode,
			At:           at,
		}},
	}
	return order, nil
}

// TransitionTo moves the order to status and records the transition.
// It returns false when the order is already in that status.
func (o *Order) TransitionTo(status CanonicalStatus, source TransitionSource, externalCode string, at time.Time) (bool, error) {
	if !status.IsValid() {
		return false, ErrInvalidStatus
	}
	if o.Status == status {
		return false, nil
	}
	o.History = append(o.History, StatusTransition{
		From:         o.Status,
		To:           status,
		Source:       source,
		ExternalCode: externalCode,
		At:           at,
	})
	o.Status = status
	o.Touch(at)
	return true, nil
}

// ReplaceLineItems swaps the line items unless the order is already terminal
func (o *Order) ReplaceLineItems(items []LineItem, total decimal.Decimal, at time.Time) error {
	if o.Status.IsTerminal() {
		return ErrTerminalLineItemChange
	}
	o.Items = make([]LineItem, len(items))
	copy(o.Items, items)
	o.TotalAmount = total
	o.Touch(at)
	return nil
}

// ExternalOrderMapping links (marketplace, external order id) to exactly one internal order
type ExternalOrderMapping struct {
	ID              uuid.UUID
	Marketplace     MarketplaceID
	ExternalOrderID string
	OrderID         uuid.UUID
	ExternalStatus  string
	Checksum        string
	IngestedAt      time.Time
	UpdatedAt       time.Time
}

// OrderFilter narrows an order listing
type OrderFilter struct {
	Marketplace MarketplaceID
	ShopCode    string
	Statuses    []CanonicalStatus
	Since       *time.Time
	OrderBy     string
	OrderDir    string
	Page        int
	PageSize    int
}

// OrderRepository persists orders together with their external mappings
type OrderRepository interface {
	// FindMapping returns ErrMappingNotFound when the external order was never ingested
	FindMapping(ctx context.Context, marketplace MarketplaceID, externalOrderID string) (*ExternalOrderMapping, error)
	// CreateWithMapping stores a new order and its mapping in one transaction.
	// A mapping that already exists yields a ConflictError.
	CreateWithMapping(ctx context.Context, order *Order, mapping *ExternalOrderMapping) error
	// UpdateWithMapping saves the order under optimistic locking and refreshes the mapping
	// when one is given.
	// A stale order version yields a ConflictError.
	UpdateWithMapping(ctx context.Context, order *Order, mapping *ExternalOrderMapping) error
	// FindByID returns ErrOrderNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// List returns matching orders and the total count
	List(ctx context.Context, filter OrderFilter) ([]Order, int64, error)
}
