package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/telemetry"
)

// ReconcilerConfig selects the authoritative side per marketplace
type ReconcilerConfig struct {
	DefaultDirection integration.SyncDirection
	Directions       map[integration.MarketplaceID]integration.SyncDirection
}

// Direction returns the configured direction for a marketplace
func (c ReconcilerConfig) Direction(marketplace integration.MarketplaceID) integration.SyncDirection {
	if d, ok := c.Directions[marketplace]; ok && d.IsValid() {
		return d
	}
	if c.DefaultDirection.IsValid() {
		return c.DefaultDirection
	}
	return integration.SyncDirectionPush
}

// InventoryReconciler brings internal stock and marketplace-visible stock into agreement
type InventoryReconciler struct {
	registry integration.AdapterRegistry
	skus     integration.SKURepository
	config   ReconcilerConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewInventoryReconciler creates a reconciler
func NewInventoryReconciler(
	registry integration.AdapterRegistry,
	skus integration.SKURepository,
	config ReconcilerConfig,
	logger *zap.Logger,
) *InventoryReconciler {
	return &InventoryReconciler{
		registry: registry,
		skus:     skus,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile runs one inventory pass for run.Marketplace.
// A returned error is run-level; per-SKU failures are collected in the report.
func (r *InventoryReconciler) Reconcile(ctx context.Context, run *integration.SyncRun) (*integration.RunReport, error) {
	ctx, span := telemetry.StartRunSpan(ctx, "inventory_sync", run)
	report, err := r.reconcile(ctx, run)
	telemetry.EndRunSpan(span, report, err)
	return report, err
}

func (r *InventoryReconciler) reconcile(ctx context.Context, run *integration.SyncRun) (*integration.RunReport, error) {
	report := &integration.RunReport{}

	adapter, err := r.registry.Get(run.Marketplace)
	if err != nil {
		return report, err
	}

	external, err := adapter.FetchInventory(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch inventory: %w", err)
	}

	skus, err := r.skus.ListMapped(ctx, run.Marketplace)
	if err != nil {
		return report, fmt.Errorf("list mapped skus: %w", err)
	}

	mapped := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		mapped[sku.Mapping.ExternalSKU] = struct{}{}
	}
	for externalSKU := range external {
		if _, ok := mapped[externalSKU]; !ok {
			report.Skipped++
			logger.Ctx(ctx, r.logger).Debug("Skipping unmapped external SKU",
				zap.String("external_sku", externalSKU),
			)
		}
	}

	direction := r.config.Direction(run.Marketplace)
	logger.Ctx(ctx, r.logger).Info("Starting inventory reconciliation",
		zap.String("direction", string(direction)),
		zap.Int("mapped_skus", len(skus)),
		zap.Int("external_skus", len(external)),
	)

	if direction == integration.SyncDirectionPull {
		r.pull(ctx, run, skus, external, report)
		return report, nil
	}
	return report, r.push(ctx, adapter, run, skus, external, report)
}

// ---------------------------------------------------------------------------
// Push
// ---------------------------------------------------------------------------

func (r *InventoryReconciler) push(
	ctx context.Context,
	adapter integration.MarketplaceAdapter,
	run *integration.SyncRun,
	skus []integration.ListingSKU,
	external map[string]int,
	report *integration.RunReport,
) error {
	outbound := make(map[string]int)
	pending := make(map[string]integration.ListingSKU)

	for _, sku := range skus {
		report.Processed++
		ext := sku.Mapping.ExternalSKU

		if sku.Delta() == 0 {
			report.Skipped++
			if observed, ok := external[ext]; ok && observed != sku.Quantity {
				report.Drifted++
				logger.Ctx(ctx, r.logger).Info("External stock drifted from internal, not pushing",
					zap.String("external_sku", ext),
					zap.Int("internal", sku.Quantity),
					zap.Int("external", observed),
				)
			}
			continue
		}
		outbound[ext] = sku.Quantity
		pending[ext] = sku
	}

	if len(outbound) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	results, err := adapter.PushInventory(ctx, outbound)
	if err != nil {
		switch integration.Classify(err) {
		case integration.ErrorClassAuth, integration.ErrorClassTransient, integration.ErrorClassCancelled:
			return fmt.Errorf("push inventory: %w", err)
		}
		for _, ext := range sortedKeys(pending) {
			report.AddError(ext, err)
		}
		return nil
	}

	for _, res := range results {
		sku, ok := pending[res.ExternalSKU]
		if !ok {
			continue
		}
		delete(pending, res.ExternalSKU)

		if !res.Success {
			pushErr := res.Err
			if pushErr == nil {
				pushErr = errors.New("marketplace rejected stock update")
			}
			report.AddError(res.ExternalSKU, pushErr)
			continue
		}
		r.commitPush(ctx, adapter, run, sku, res.Quantity, report)
	}

	for _, ext := range sortedKeys(pending) {
		report.AddError(ext, errors.New("marketplace returned no result for sku"))
	}
	return nil
}

// commitPush records the pushed quantity as last-synced. If a sale landed while the
// push was in flight the CAS fails; the SKU is re-read once and, when the fresh
// quantity differs from what was pushed, the fresh value is pushed again.
func (r *InventoryReconciler) commitPush(
	ctx context.Context,
	adapter integration.MarketplaceAdapter,
	run *integration.SyncRun,
	sku integration.ListingSKU,
	pushed int,
	report *integration.RunReport,
) {
	ext := sku.Mapping.ExternalSKU
	err := r.skus.CompareAndSetSynced(ctx, sku.ID, run.Marketplace, sku.Version, pushed, r.now())
	if err == nil {
		report.Succeeded++
		return
	}
	if integration.Classify(err) != integration.ErrorClassConflict {
		report.AddError(ext, err)
		return
	}

	fresh, err := r.skus.FindMapped(ctx, run.Marketplace, ext)
	if err != nil {
		report.AddError(ext, err)
		return
	}

	logger.Ctx(ctx, r.logger).Info("Stock changed during push, retrying with fresh quantity",
		zap.String("external_sku", ext),
		zap.Int("pushed", pushed),
		zap.Int("fresh", fresh.Quantity),
	)

	if fresh.Quantity != pushed {
		results, err := adapter.PushInventory(ctx, map[string]int{ext: fresh.Quantity})
		if err != nil {
			report.AddError(ext, err)
			return
		}
		if len(results) == 0 || !results[0].Success {
			report.AddError(ext, errors.New("marketplace rejected stock update on retry"))
			return
		}
	}

	if err := r.skus.CompareAndSetSynced(ctx, fresh.ID, run.Marketplace, fresh.Version, fresh.Quantity, r.now()); err != nil {
		report.AddError(ext, err)
		return
	}
	report.Succeeded++
}

// ---------------------------------------------------------------------------
// Pull
// ---------------------------------------------------------------------------

func (r *InventoryReconciler) pull(
	ctx context.Context,
	run *integration.SyncRun,
	skus []integration.ListingSKU,
	external map[string]int,
	report *integration.RunReport,
) {
	for _, sku := range skus {
		report.Processed++
		ext := sku.Mapping.ExternalSKU

		observed, ok := external[ext]
		if !ok {
			report.Skipped++
			logger.Ctx(ctx, r.logger).Debug("Mapped SKU missing from marketplace inventory",
				zap.String("external_sku", ext),
			)
			continue
		}
		if observed == sku.Quantity && observed == sku.Mapping.LastSyncedQuantity {
			report.Skipped++
			continue
		}

		current := sku
		_, err := r.skus.PullQuantity(ctx, current.ID, run.Marketplace, current.Version, observed, r.now())
		if integration.Classify(err) == integration.ErrorClassConflict {
			fresh, findErr := r.skus.FindMapped(ctx, run.Marketplace, ext)
			if findErr != nil {
				report.AddError(ext, findErr)
				continue
			}
			current = *fresh
			_, err = r.skus.PullQuantity(ctx, current.ID, run.Marketplace, current.Version, observed, r.now())
		}
		if err != nil {
			report.AddError(ext, err)
			continue
		}

		if observed != current.Quantity {
			runID := run.ID
			entry := integration.InventoryHistory{
				ID:        uuid.New(),
				SKUID:     current.ID,
				Before:    current.Quantity,
				After:     observed,
				Reason:    integration.StockChangeSyncPull,
				RunID:     &runID,
				CreatedAt: r.now(),
			}
			if err := r.skus.AppendHistory(ctx, entry); err != nil {
				logger.Ctx(ctx, r.logger).Warn("Failed to record inventory history",
					zap.String("sku_id", current.ID.String()),
					zap.Error(err),
				)
			}
		}
		report.Succeeded++
	}
}

func sortedKeys(m map[string]integration.ListingSKU) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
