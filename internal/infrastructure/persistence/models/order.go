package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketsync/backend/internal/domain/integration"
)

// OrderModel is the persistence model for the canonical Order aggregate.
// Line items and status history are stored as JSON documents.
type OrderModel struct {
	AggregateModel
	Marketplace string          `gorm:"type:varchar(50);not null;index:idx_orders_marketplace_ordered,priority:1"`
	BuyerRef    string          `gorm:"type:varchar(255)"`
	ShopCode    string          `gorm:"type:varchar(50);index:idx_orders_shop"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	OrderedAt   time.Time       `gorm:"index:idx_orders_marketplace_ordered,priority:2"`
	Status      string          `gorm:"type:varchar(30);not null;index:idx_orders_status"`
	ItemsJSON   string          `gorm:"type:jsonb;column:items;not null"`
	HistoryJSON string          `gorm:"type:jsonb;column:status_history;not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

type lineItemDoc struct {
	ExternalSKU string          `json:"external_sku"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type transitionDoc struct {
	From         string    `json:"from,omitempty"`
	To           string    `json:"to"`
	Source       string    `json:"source"`
	ExternalCode string    `json:"external_code,omitempty"`
	At           time.Time `json:"at"`
}

// FromDomain populates the persistence model from a domain Order
func (m *OrderModel) FromDomain(o *integration.Order) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.Marketplace = string(o.Marketplace)
	m.BuyerRef = o.BuyerRef
	m.ShopCode = o.ShopCode
	m.TotalAmount = o.TotalAmount
	m.OrderedAt = o.OrderedAt
	m.Status = string(o.Status)

	items := make([]lineItemDoc, len(o.Items))
	for i, item := range o.Items {
		items[i] = lineItemDoc{
			ExternalSKU: item.ExternalSKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}
	if raw, err := json.Marshal(items); err == nil {
		m.ItemsJSON = string(raw)
	}

	history := make([]transitionDoc, len(o.History))
	for i, h := range o.History {
		history[i] = transitionDoc{
			From:         string(h.From),
			To:           string(h.To),
			Source:       string(h.Source),
			ExternalCode: h.ExternalCode,
			At:           h.At,
		}
	}
	if raw, err := json.Marshal(history); err == nil {
		m.HistoryJSON = string(raw)
	}
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *integration.Order {
	order := &integration.Order{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Marketplace:       integration.MarketplaceID(m.Marketplace),
		BuyerRef:          m.BuyerRef,
		ShopCode:          m.ShopCode,
		TotalAmount:       m.TotalAmount,
		OrderedAt:         m.OrderedAt,
		Status:            integration.CanonicalStatus(m.Status),
		Items:             make([]integration.LineItem, 0),
		History:           make([]integration.StatusTransition, 0),
	}

	var items []lineItemDoc
	if err := json.Unmarshal([]byte(m.ItemsJSON), &items); err == nil {
		for _, item := range items {
			order.Items = append(order.Items, integration.LineItem{
				ExternalSKU: item.ExternalSKU,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			})
		}
	}

	var history []transitionDoc
	if err := json.Unmarshal([]byte(m.HistoryJSON), &history); err == nil {
		for _, h := range history {
			order.History = append(order.History, integration.StatusTransition{
				From:         integration.CanonicalStatus(h.From),
				To:           integration.CanonicalStatus(h.To),
				Source:       integration.TransitionSource(h.Source),
				ExternalCode: h.ExternalCode,
				At:           h.At,
			})
		}
	}
	return order
}

// OrderModelFromDomain creates a new persistence model from a domain Order
func OrderModelFromDomain(o *integration.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// ExternalOrderMappingModel links one external order to one canonical order
type ExternalOrderMappingModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	Marketplace     string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_external_order_mappings_external,priority:1"`
	ExternalOrderID string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_external_order_mappings_external,priority:2"`
	OrderID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_external_order_mappings_order"`
	ExternalStatus  string    `gorm:"type:varchar(50);not null"`
	Checksum        string    `gorm:"type:char(64);not null"`
	IngestedAt      time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ExternalOrderMappingModel) TableName() string {
	return "external_order_mappings"
}

// ToDomain converts the model to a domain mapping
func (m *ExternalOrderMappingModel) ToDomain() *integration.ExternalOrderMapping {
	return &integration.ExternalOrderMapping{
		ID:              m.ID,
		Marketplace:     integration.MarketplaceID(m.Marketplace),
		ExternalOrderID: m.ExternalOrderID,
		OrderID:         m.OrderID,
		ExternalStatus:  m.ExternalStatus,
		Checksum:        m.Checksum,
		IngestedAt:      m.IngestedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ExternalOrderMappingModelFromDomain creates a model from a domain mapping
func ExternalOrderMappingModelFromDomain(e *integration.ExternalOrderMapping) *ExternalOrderMappingModel {
	return &ExternalOrderMappingModel{
		ID:              e.ID,
		Marketplace:     string(e.Marketplace),
		ExternalOrderID: e.ExternalOrderID,
		OrderID:         e.OrderID,
		ExternalStatus:  e.ExternalStatus,
		Checksum:        e.Checksum,
		IngestedAt:      e.IngestedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}
