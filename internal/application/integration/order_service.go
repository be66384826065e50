package integration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
)

// OrderService exposes canonical orders to operators
type OrderService struct {
	orders integration.OrderRepository
	now    func() time.Time
}

// NewOrderService creates an order service
func NewOrderService(orders integration.OrderRepository) *OrderService {
	return &OrderService{orders: orders, now: time.Now}
}

// List returns orders matching filter
func (s *OrderService) List(ctx context.Context, filter integration.OrderFilter) ([]integration.Order, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return s.orders.List(ctx, filter)
}

// Get returns one order
func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*integration.Order, error) {
	return s.orders.FindByID(ctx, id)
}

// Transition applies an operator-initiated status change, recorded with source "internal"
func (s *OrderService) Transition(ctx context.Context, id uuid.UUID, status integration.CanonicalStatus) (*integration.Order, error) {
	if !status.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidStatus, "Unknown order status: "+string(status))
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := order.TransitionTo(status, integration.TransitionSourceInternal, "", s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}
	if err := s.orders.UpdateWithMapping(ctx, order, nil); err != nil {
		return nil, err
	}
	return order, nil
}
