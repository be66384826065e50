package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

func newInventoryRun(t *testing.T) *integration.SyncRun {
	t.Helper()
	run, err := integration.NewSyncRun(testMarketplace, integration.RunKindInventory,
		integration.RunTriggerManual, 1, integration.Watermark{}, time.Now())
	require.NoError(t, err)
	return run
}

func TestInventoryReconciler_PushesOnlyChangedSKUs(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.inventory = map[string]int{"EXT-A": 10, "EXT-B": 5}
	skus := newFakeSKURepo()
	a := skus.add("A", "EXT-A", 8, 10)
	b := skus.add("B", "EXT-B", 5, 5)

	r := NewInventoryReconciler(newRegistry(adapter), skus, ReconcilerConfig{}, zap.NewNop())
	report, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.NoError(t, err)

	require.Len(t, adapter.pushes, 1)
	assert.Equal(t, map[string]int{"EXT-A": 8}, adapter.pushes[0])
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, integration.RunOutcomeSucceeded, report.Outcome())

	assert.Equal(t, 8, skus.get(a).Mapping.LastSyncedQuantity)
	assert.NotNil(t, skus.get(a).Mapping.LastSyncedAt)
	assert.Equal(t, 5, skus.get(b).Mapping.LastSyncedQuantity)
}

func TestInventoryReconciler_SecondRunIsIdempotent(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.inventory = map[string]int{"EXT-A": 10}
	skus := newFakeSKURepo()
	skus.add("A", "EXT-A", 8, 10)

	r := NewInventoryReconciler(newRegistry(adapter), skus, ReconcilerConfig{}, zap.NewNop())
	_, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.NoError(t, err)
	require.Equal(t, 1, adapter.pushCount())

	report, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.pushCount())
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.Drifted)
}

func TestInventoryReconciler_ConcurrentSaleIsPushedAgain(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.inventory = map[string]int{"EXT-A": 10}
	skus := newFakeSKURepo()
	a := skus.add("A", "EXT-A", 8, 10)
	stock := NewStockService(skus, zap.NewNop())

	// A sale lands after the push but before the reconciler records it
	skus.beforeSynced = func() {
		_, err := stock.RecordSale(context.Background(), a, 1)
		require.NoError(t, err)
	}

	r := NewInventoryReconciler(newRegistry(adapter), skus, ReconcilerConfig{}, zap.NewNop())
	report, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.NoError(t, err)

	require.Len(t, adapter.pushes, 2)
	assert.Equal(t, map[string]int{"EXT-A": 8}, adapter.pushes[0])
	assert.Equal(t, map[string]int{"EXT-A": 7}, adapter.pushes[1])
	assert.Equal(t, 7, adapter.inventory["EXT-A"])

	sku := skus.get(a)
	assert.Equal(t, 7, sku.Quantity)
	assert.Equal(t, 7, sku.Mapping.LastSyncedQuantity)
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.Failed)
}

func TestInventoryReconciler_ReportsDriftWithoutPushing(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.inventory = map[string]int{"EXT-A": 3}
	skus := newFakeSKURepo()
	skus.add("A", "EXT-A", 10, 10)

	r := NewInventoryReconciler(newRegistry(adapter), skus, ReconcilerConfig{}, zap.NewNop())
	report, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.NoError(t, err)

	assert.Equal(t, 0, adapter.pushCount())
	assert.Equal(t, 1, report.Drifted)
	assert.Equal(t, integration.RunOutcomeSucceeded, report.Outcome())
}

func TestInventoryReconciler_SkipsUnmappedExternalSKUs(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.inventory = map[string]int{"EXT-A": 10, "EXT-ORPHAN": 4}
	skus := newFakeSKURepo()
	skus.add("A", "EXT-A", 10, 10)
	skus.add("LOCAL-ONLY", "", 3, 0)

	r := NewInventoryReconciler(newRegistry(adapter), skus, ReconcilerConfig{}, zap.NewNop())
	report, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, adapter.pushCount())
}

func TestInventoryReconciler_RejectedItemMakesRunPartial(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.rejectSKUs["EXT-B"] = true
	skus := newFakeSKURepo()
	a := skus.add("A", "EXT-A", 4, 10)
	b := skus.add("B", "EXT-B", 6, 10)

	r := NewInventoryReconciler(newRegistry(adapter), skus, ReconcilerConfig{}, zap.NewNop())
	report, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "EXT-B", report.Errors[0].Ref)
	assert.Equal(t, integration.RunOutcomePartial, report.Outcome())

	assert.Equal(t, 4, skus.get(a).Mapping.LastSyncedQuantity)
	// Not confirmed, so the delta is still pending for the next run
	assert.Equal(t, 10, skus.get(b).Mapping.LastSyncedQuantity)
}

func TestInventoryReconciler_TransientPushFailureFailsRun(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.pushErr = &integration.TransientNetworkError{Op: "push", StatusCode: 503}
	skus := newFakeSKURepo()
	a := skus.add("A", "EXT-A", 4, 10)

	r := NewInventoryReconciler(newRegistry(adapter), skus, ReconcilerConfig{}, zap.NewNop())
	_, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.Error(t, err)
	assert.True(t, integration.IsRetryable(err))
	assert.Equal(t, 10, skus.get(a).Mapping.LastSyncedQuantity)
}

func TestInventoryReconciler_PermanentPushFailureIsPerRecord(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.pushErr = &integration.PermanentError{Op: "push", StatusCode: 400, Err: errors.New("bad sku")}
	skus := newFakeSKURepo()
	skus.add("A", "EXT-A", 4, 10)
	skus.add("B", "EXT-B", 2, 1)

	r := NewInventoryReconciler(newRegistry(adapter), skus, ReconcilerConfig{}, zap.NewNop())
	report, err := r.Reconcile(context.Background(), newInventoryRun(t))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, integration.RunOutcomeFailed, report.Outcome())
}

func TestInventoryReconciler_PullDirection(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.inventory = map[string]int{"EXT-A": 15, "EXT-B": 5}
	skus := newFakeSKURepo()
	a := skus.add("A", "EXT-A", 10, 10)
	b := skus.add("B", "EXT-B", 5, 5)

	config := ReconcilerConfig{Directions: map[integration.MarketplaceID]integration.SyncDirection{
		testMarketplace: integration.SyncDirectionPull,
	}}
	run := newInventoryRun(t)
	r := NewInventoryReconciler(newRegistry(adapter), skus, config, zap.NewNop())
	report, err := r.Reconcile(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, 0, adapter.pushCount())
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)

	sku := skus.get(a)
	assert.Equal(t, 15, sku.Quantity)
	assert.Equal(t, 15, sku.Mapping.LastSyncedQuantity)
	assert.Equal(t, 5, skus.get(b).Quantity)

	require.Len(t, skus.history, 1)
	entry := skus.history[0]
	assert.Equal(t, a, entry.SKUID)
	assert.Equal(t, 10, entry.Before)
	assert.Equal(t, 15, entry.After)
	assert.Equal(t, 5, entry.Change())
	assert.Equal(t, integration.StockChangeSyncPull, entry.Reason)
	require.NotNil(t, entry.RunID)
	assert.Equal(t, run.ID, *entry.RunID)
}

func TestInventoryReconciler_UnknownMarketplace(t *testing.T) {
	r := NewInventoryReconciler(integration.NewAdapterRegistry(), newFakeSKURepo(), ReconcilerConfig{}, zap.NewNop())
	_, err := r.Reconcile(context.Background(), newInventoryRun(t))
	assert.ErrorIs(t, err, integration.ErrMarketplaceNotRegistered)
}

func TestReconcilerConfig_Direction(t *testing.T) {
	config := ReconcilerConfig{
		DefaultDirection: integration.SyncDirectionPull,
		Directions:       map[integration.MarketplaceID]integration.SyncDirection{"naver-main": integration.SyncDirectionPush},
	}
	assert.Equal(t, integration.SyncDirectionPush, config.Direction("naver-main"))
	assert.Equal(t, integration.SyncDirectionPull, config.Direction("other"))
	assert.Equal(t, integration.SyncDirectionPush, ReconcilerConfig{}.Direction("other"))
}
