package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
)

func newTestOrder(t *testing.T, externalID string, orderedAt time.Time, status integration.CanonicalStatus) (*integration.Order, *integration.ExternalOrderMapping) {
	t.Helper()
	ext := &integration.ExternalOrder{
		Marketplace:     testMarketplace,
		ExternalOrderID: externalID,
		StatusCode:      "신규주문",
		BuyerRef:        "buyer-1",
		ShopCode:        "A001",
		TotalAmount:     decimal.NewFromInt(25000),
		OrderedAt:       orderedAt,
		ChangedAt:       orderedAt,
		Items: []integration.LineItem{
			{ExternalSKU: "SKU-A", ProductName: "Mug", Quantity: 2, UnitPrice: decimal.NewFromInt(12500)},
		},
	}
	order, err := integration.NewOrderFromExternal(ext, status, orderedAt)
	require.NoError(t, err)
	mapping := &integration.ExternalOrderMapping{
		ID:              uuid.New(),
		Marketplace:     testMarketplace,
		ExternalOrderID: externalID,
		OrderID:         order.ID,
		ExternalStatus:  ext.StatusCode,
		Checksum:        ext.Checksum(),
		IngestedAt:      orderedAt,
		UpdatedAt:       orderedAt,
	}
	return order, mapping
}

func TestGormOrderRepository_CreateWithMapping(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	order, mapping := newTestOrder(t, "1001", at, integration.StatusPaid)
	require.NoError(t, repo.CreateWithMapping(ctx, order, mapping))

	found, err := repo.FindMapping(ctx, testMarketplace, "1001")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.OrderID)
	assert.Equal(t, mapping.Checksum, found.Checksum)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusPaid, loaded.Status)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "SKU-A", loaded.Items[0].ExternalSKU)
	assert.True(t, decimal.NewFromInt(12500).Equal(loaded.Items[0].UnitPrice))
	require.Len(t, loaded.History, 1)
	assert.Equal(t, integration.TransitionSourceExternalSync, loaded.History[0].Source)
	assert.Equal(t, 1, loaded.Version)

	t.Run("second mapping for the same external order conflicts", func(t *testing.T) {
		dup, dupMapping := newTestOrder(t, "1001", at, integration.StatusPaid)
		err := repo.CreateWithMapping(ctx, dup, dupMapping)
		assert.Equal(t, integration.ErrorClassConflict, integration.Classify(err))

		_, err = repo.FindByID(ctx, dup.ID)
		assert.ErrorIs(t, err, integration.ErrOrderNotFound, "order insert is rolled back with the mapping")
	})

	t.Run("missing mapping", func(t *testing.T) {
		_, err := repo.FindMapping(ctx, testMarketplace, "nope")
		assert.ErrorIs(t, err, integration.ErrMappingNotFound)
	})
}

func TestGormOrderRepository_UpdateWithMapping(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	order, mapping := newTestOrder(t, "1001", at, integration.StatusPaid)
	require.NoError(t, repo.CreateWithMapping(ctx, order, mapping))

	stale, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)

	_, err = order.TransitionTo(integration.StatusShipping, integration.TransitionSourceExternalSync, "배송중", at.Add(time.Hour))
	require.NoError(t, err)
	mapping.ExternalStatus = "배송중"
	mapping.Checksum = "changed"
	require.NoError(t, repo.UpdateWithMapping(ctx, order, mapping))
	assert.Equal(t, 2, order.Version)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusShipping, loaded.Status)
	assert.Len(t, loaded.History, 2)
	assert.Equal(t, 2, loaded.Version)

	found, err := repo.FindMapping(ctx, testMarketplace, "1001")
	require.NoError(t, err)
	assert.Equal(t, "배송중", found.ExternalStatus)
	assert.Equal(t, "changed", found.Checksum)

	// a writer holding the version-1 copy loses
	_, err = stale.TransitionTo(integration.StatusCancelled, integration.TransitionSourceInternal, "", at.Add(2*time.Hour))
	require.NoError(t, err)
	err = repo.UpdateWithMapping(ctx, stale, nil)
	assert.Equal(t, integration.ErrorClassConflict, integration.Classify(err))
	assert.Equal(t, 1, stale.Version)
}

func TestGormOrderRepository_List(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []integration.CanonicalStatus{integration.StatusPaid, integration.StatusShipping, integration.StatusPaid} {
		order, mapping := newTestOrder(t, uuid.NewString(), base.Add(time.Duration(i)*time.Hour), status)
		require.NoError(t, repo.CreateWithMapping(ctx, order, mapping))
	}

	orders, total, err := repo.List(ctx, integration.OrderFilter{Marketplace: testMarketplace})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, orders, 3)
	assert.True(t, orders[0].OrderedAt.After(orders[1].OrderedAt), "newest first")

	orders, total, err = repo.List(ctx, integration.OrderFilter{Statuses: []integration.CanonicalStatus{integration.StatusPaid}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, orders, 2)

	since := base.Add(90 * time.Minute)
	_, total, err = repo.List(ctx, integration.OrderFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	orders, total, err = repo.List(ctx, integration.OrderFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, orders, 1)

	orders, _, err = repo.List(ctx, integration.OrderFilter{OrderBy: "ordered_at", OrderDir: "asc"})
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.True(t, orders[0].OrderedAt.Before(orders[1].OrderedAt), "oldest first")

	orders, _, err = repo.List(ctx, integration.OrderFilter{OrderBy: "items; DROP TABLE orders", OrderDir: "asc"})
	require.NoError(t, err)
	assert.Len(t, orders, 3, "unknown sort fields fall back to ordered_at")
}
