package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
)

const defaultStockWriteAttempts = 3

// StockService applies user-facing stock mutations (sales, returns, manual counts)
// under per-SKU compare-and-set so a concurrent reconciliation cannot overwrite them.
type StockService struct {
	skus        integration.SKURepository
	logger      *zap.Logger
	maxAttempts int
	now         func() time.Time
}

// NewStockService creates a stock service
func NewStockService(skus integration.SKURepository, logger *zap.Logger) *StockService {
	return &StockService{
		skus:        skus,
		logger:      logger,
		maxAttempts: defaultStockWriteAttempts,
		now:         time.Now,
	}
}

// RecordSale decrements stock by quantity
func (s *StockService) RecordSale(ctx context.Context, skuID uuid.UUID, quantity int) (*integration.ListingSKU, error) {
	if quantity <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Sale quantity must be positive")
	}
	return s.mutate(ctx, skuID, integration.StockChangeSale, func(current int) (int, error) {
		if current < quantity {
			return 0, shared.ErrInsufficientStock
		}
		return current - quantity, nil
	})
}

// RecordReturn increments stock by quantity
func (s *StockService) RecordReturn(ctx context.Context, skuID uuid.UUID, quantity int) (*integration.ListingSKU, error) {
	if quantity <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Return quantity must be positive")
	}
	return s.mutate(ctx, skuID, integration.StockChangeReturn, func(current int) (int, error) {
		return current + quantity, nil
	})
}

// Adjust sets stock to an absolute counted quantity
func (s *StockService) Adjust(ctx context.Context, skuID uuid.UUID, quantity int) (*integration.ListingSKU, error) {
	if quantity < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Stock quantity cannot be negative")
	}
	return s.mutate(ctx, skuID, integration.StockChangeManual, func(int) (int, error) {
		return quantity, nil
	})
}

func (s *StockService) mutate(
	ctx context.Context,
	skuID uuid.UUID,
	reason integration.StockChangeReason,
	next func(current int) (int, error),
) (*integration.ListingSKU, error) {
	for attempt := 1; ; attempt++ {
		sku, err := s.skus.FindByID(ctx, skuID)
		if err != nil {
			return nil, err
		}
		quantity, err := next(sku.Quantity)
		if err != nil {
			return nil, err
		}

		version, err := s.skus.CompareAndSetQuantity(ctx, sku.ID, sku.Version, quantity)
		if err != nil {
			if integration.Classify(err) == integration.ErrorClassConflict && attempt < s.maxAttempts {
				s.logger.Debug("Stock write conflicted, retrying",
					zap.String("sku_id", skuID.String()),
					zap.Int("attempt", attempt),
				)
				continue
			}
			return nil, fmt.Errorf("update stock: %w", err)
		}

		entry := integration.InventoryHistory{
			ID:        uuid.New(),
			SKUID:     sku.ID,
			Before:    sku.Quantity,
			After:     quantity,
			Reason:    reason,
			CreatedAt: s.now(),
		}
		if err := s.skus.AppendHistory(ctx, entry); err != nil {
			s.logger.Warn("Failed to record inventory history",
				zap.String("sku_id", sku.ID.String()),
				zap.Error(err),
			)
		}

		sku.Quantity = quantity
		sku.Version = version
		return sku, nil
	}
}
