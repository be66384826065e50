package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
)

func TestStockService_RecordSale(t *testing.T) {
	skus := newFakeSKURepo()
	id := skus.add("A", "EXT-A", 10, 10)
	svc := NewStockService(skus, zap.NewNop())

	sku, err := svc.RecordSale(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, sku.Quantity)
	assert.Equal(t, 2, sku.Version)
	assert.Equal(t, -3, sku.Delta())

	require.Len(t, skus.history, 1)
	assert.Equal(t, integration.StockChangeSale, skus.history[0].Reason)
	assert.Equal(t, 10, skus.history[0].Before)
	assert.Equal(t, 7, skus.history[0].After)
	assert.Nil(t, skus.history[0].RunID)
}

func TestStockService_RecordSale_InsufficientStock(t *testing.T) {
	skus := newFakeSKURepo()
	id := skus.add("A", "EXT-A", 2, 2)
	svc := NewStockService(skus, zap.NewNop())

	_, err := svc.RecordSale(context.Background(), id, 3)
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Equal(t, 2, skus.get(id).Quantity)
	assert.Empty(t, skus.history)
}

func TestStockService_RecordReturnAndAdjust(t *testing.T) {
	skus := newFakeSKURepo()
	id := skus.add("A", "EXT-A", 5, 5)
	svc := NewStockService(skus, zap.NewNop())

	sku, err := svc.RecordReturn(context.Background(), id, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, sku.Quantity)

	sku, err = svc.Adjust(context.Background(), id, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, sku.Quantity)

	require.Len(t, skus.history, 2)
	assert.Equal(t, integration.StockChangeReturn, skus.history[0].Reason)
	assert.Equal(t, integration.StockChangeManual, skus.history[1].Reason)
}

func TestStockService_RejectsInvalidQuantities(t *testing.T) {
	svc := NewStockService(newFakeSKURepo(), zap.NewNop())
	id := uuid.New()

	_, err := svc.RecordSale(context.Background(), id, 0)
	assert.Error(t, err)
	_, err = svc.RecordReturn(context.Background(), id, -1)
	assert.Error(t, err)
	_, err = svc.Adjust(context.Background(), id, -5)
	assert.Error(t, err)
}

func TestStockService_UnknownSKU(t *testing.T) {
	svc := NewStockService(newFakeSKURepo(), zap.NewNop())
	_, err := svc.RecordSale(context.Background(), uuid.New(), 1)
	assert.ErrorIs(t, err, integration.ErrSKUNotFound)
}

// racingSKURepo lets another writer sell one unit just before the first CAS
type racingSKURepo struct {
	*fakeSKURepo
	raced bool
}

func (r *racingSKURepo) CompareAndSetQuantity(ctx context.Context, id uuid.UUID, expectedVersion, quantity int) (int, error) {
	if !r.raced {
		r.raced = true
		current, _ := r.fakeSKURepo.FindByID(ctx, id)
		if _, err := r.fakeSKURepo.CompareAndSetQuantity(ctx, id, current.Version, current.Quantity-1); err != nil {
			return 0, err
		}
	}
	return r.fakeSKURepo.CompareAndSetQuantity(ctx, id, expectedVersion, quantity)
}

func TestStockService_RetriesOnConcurrentWrite(t *testing.T) {
	base := newFakeSKURepo()
	id := base.add("A", "EXT-A", 10, 10)
	svc := NewStockService(&racingSKURepo{fakeSKURepo: base}, zap.NewNop())

	sku, err := svc.RecordSale(context.Background(), id, 2)
	require.NoError(t, err)
	// 10 - 1 (concurrent) - 2
	assert.Equal(t, 7, sku.Quantity)
	assert.Equal(t, 7, base.get(id).Quantity)
	require.Len(t, base.history, 1)
	assert.Equal(t, 9, base.history[0].Before)
}
