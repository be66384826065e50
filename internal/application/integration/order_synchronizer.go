package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/telemetry"
)

// DefaultInitialLookback is how far back the first order run for a marketplace reaches
const DefaultInitialLookback = 7 * 24 * time.Hour

// OrderSynchronizerConfig holds order ingestion settings
type OrderSynchronizerConfig struct {
	// InitialLookback bounds the first run, and reconciliation passes
	InitialLookback time.Duration
	// ShopCodes optionally restricts each marketplace to some shops
	ShopCodes map[integration.MarketplaceID][]string
	// StatusFilter optionally restricts each marketplace to some external statuses
	StatusFilter map[integration.MarketplaceID][]string
}

// OrderSynchronizer ingests external orders into canonical orders exactly once
type OrderSynchronizer struct {
	registry   integration.AdapterRegistry
	orders     integration.OrderRepository
	quarantine integration.QuarantineRepository
	state      integration.SyncStateRepository
	statuses   *integration.StatusMappingTable
	config     OrderSynchronizerConfig
	logger     *zap.Logger

	archive   integration.PayloadArchive
	publisher integration.SyncEventPublisher
	now       func() time.Time
}

// NewOrderSynchronizer creates an order synchronizer
func NewOrderSynchronizer(
	registry integration.AdapterRegistry,
	orders integration.OrderRepository,
	quarantine integration.QuarantineRepository,
	state integration.SyncStateRepository,
	statuses *integration.StatusMappingTable,
	config OrderSynchronizerConfig,
	logger *zap.Logger,
) *OrderSynchronizer {
	if config.InitialLookback <= 0 {
		config.InitialLookback = DefaultInitialLookback
	}
	return &OrderSynchronizer{
		registry:   registry,
		orders:     orders,
		quarantine: quarantine,
		state:      state,
		statuses:   statuses,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// SetPayloadArchive sets where quarantined payloads are archived
func (s *OrderSynchronizer) SetPayloadArchive(archive integration.PayloadArchive) {
	s.archive = archive
}

// SetEventPublisher sets the publisher notified about quarantined records
func (s *OrderSynchronizer) SetEventPublisher(publisher integration.SyncEventPublisher) {
	s.publisher = publisher
}

// Sync consumes the marketplace's order stream from the run's start watermark.
// The watermark only moves past records that are committed, in order, and is
// persisted at every page boundary so a crash resumes from the last checkpoint.
func (s *OrderSynchronizer) Sync(ctx context.Context, run *integration.SyncRun) (*integration.RunReport, error) {
	ctx, span := telemetry.StartRunSpan(ctx, "order_sync", run)
	report, err := s.sync(ctx, run)
	telemetry.EndRunSpan(span, report, err)
	return report, err
}

func (s *OrderSynchronizer) sync(ctx context.Context, run *integration.SyncRun) (*integration.RunReport, error) {
	report := &integration.RunReport{}

	if err := s.statuses.Blocked(run.Marketplace); err != nil {
		return report, err
	}
	adapter, err := s.registry.Get(run.Marketplace)
	if err != nil {
		return report, err
	}

	committed := run.StartWatermark
	query := integration.OrderQuery{
		Since:     committed,
		ShopCodes: s.config.ShopCodes[run.Marketplace],
		Statuses:  s.config.StatusFilter[run.Marketplace],
	}
	if committed.IsZero() || run.Reconciliation {
		query.Since = integration.Watermark{At: s.now().Add(-s.config.InitialLookback).UTC()}
	}

	logger.Ctx(ctx, s.logger).Info("Starting order sync",
		zap.String("watermark", committed.Cursor()),
		zap.Bool("reconciliation", run.Reconciliation),
	)

	iter, err := adapter.FetchOrders(ctx, query)
	if err != nil {
		return report, fmt.Errorf("fetch orders: %w", err)
	}

	frozen := false
	pageNo := 0
	for {
		// Cooperative cancellation point between pages
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := iter.Next(ctx)
		if errors.Is(err, integration.ErrIteratorDone) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("fetch orders page %d: %w", pageNo+1, err)
		}
		pageNo++

		for i := range page.Orders {
			ext := &page.Orders[i]
			ext.Marketplace = run.Marketplace
			position := ext.Position()

			// Records without a change time cannot be placed; Validate quarantines them
			if !run.Reconciliation && !ext.ChangedAt.IsZero() && !position.After(committed) {
				report.Skipped++
				continue
			}
			report.Processed++

			if !s.ingest(ctx, run, ext, report) {
				if !frozen {
					logger.Ctx(ctx, s.logger).Warn("Order failed, watermark frozen for the rest of the run",
						zap.String("external_order_id", ext.ExternalOrderID),
						zap.String("watermark", run.Watermark.Cursor()),
					)
				}
				frozen = true
				continue
			}
			if !frozen {
				_ = run.AdvanceWatermark(position)
			}
		}

		if err := s.checkpoint(ctx, run); err != nil {
			return report, err
		}
		logger.Ctx(ctx, s.logger).Debug("Processed page of orders",
			zap.Int("page_no", pageNo),
			zap.Int("orders_in_page", len(page.Orders)),
			zap.Int("processed_so_far", report.Processed),
		)
	}

	logger.Ctx(ctx, s.logger).Info("Order sync completed",
		zap.Int("processed", report.Processed),
		zap.Int("created_or_updated", report.Succeeded),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("quarantined", report.Quarantined),
		zap.Int("failed", report.Failed),
		zap.String("watermark", run.Watermark.Cursor()),
	)
	return report, nil
}

func (s *OrderSynchronizer) checkpoint(ctx context.Context, run *integration.SyncRun) error {
	if !run.Watermark.After(run.StartWatermark) {
		return nil
	}
	if err := s.state.AdvanceWatermark(ctx, run.Marketplace, run.Kind, run.Watermark); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}
	return nil
}

// ingest commits one external order. It returns true when the record reached a
// committed disposition (created, updated, unchanged or quarantined).
func (s *OrderSynchronizer) ingest(ctx context.Context, run *integration.SyncRun, ext *integration.ExternalOrder, report *integration.RunReport) bool {
	if err := ext.Validate(); err != nil {
		return s.quarantineOrder(ctx, run, ext, err, report)
	}

	status, err := s.statuses.Resolve(run.Marketplace, ext.StatusCode)
	if err != nil {
		if integration.Classify(err) == integration.ErrorClassValidation {
			return s.quarantineOrder(ctx, run, ext, err, report)
		}
		report.AddError(ext.ExternalOrderID, err)
		return false
	}

	err = s.apply(ctx, ext, status, report)
	if integration.Classify(err) == integration.ErrorClassConflict {
		logger.Ctx(ctx, s.logger).Info("Concurrent write on order, retrying with fresh read",
			zap.String("external_order_id", ext.ExternalOrderID),
		)
		err = s.apply(ctx, ext, status, report)
	}

	switch integration.Classify(err) {
	case integration.ErrorClassNone:
		return true
	case integration.ErrorClassValidation:
		return s.quarantineOrder(ctx, run, ext, err, report)
	default:
		report.AddError(ext.ExternalOrderID, err)
		return false
	}
}

// apply creates or merges the canonical order. A ValidationError return means the
// order was saved but part of the change was held back for review.
func (s *OrderSynchronizer) apply(ctx context.Context, ext *integration.ExternalOrder, status integration.CanonicalStatus, report *integration.RunReport) error {
	now := s.now()
	checksum := ext.Checksum()

	mapping, err := s.orders.FindMapping(ctx, ext.Marketplace, ext.ExternalOrderID)
	if errors.Is(err, integration.ErrMappingNotFound) {
		order, err := integration.NewOrderFromExternal(ext, status, now)
		if err != nil {
			return err
		}
		mapping := &integration.ExternalOrderMapping{
			ID:              uuid.New(),
			Marketplace:     ext.Marketplace,
			ExternalOrderID: ext.ExternalOrderID,
			OrderID:         order.ID,
			ExternalStatus:  ext.StatusCode,
			Checksum:        checksum,
			IngestedAt:      now,
			UpdatedAt:       now,
		}
		if err := s.orders.CreateWithMapping(ctx, order, mapping); err != nil {
			return err
		}
		report.Succeeded++
		return nil
	}
	if err != nil {
		return err
	}

	if mapping.Checksum == checksum {
		report.Unchanged++
		return nil
	}

	order, err := s.orders.FindByID(ctx, mapping.OrderID)
	if err != nil {
		return err
	}

	var held error
	if !integration.SameLineItems(order.Items, ext.Items) {
		if err := order.ReplaceLineItems(ext.Items, ext.TotalAmount, now); err != nil {
			held = integration.NewValidationError(integration.QuarantineReasonTerminalLineItemChange,
				fmt.Sprintf("order %q changed line items after reaching %s", ext.ExternalOrderID, order.Status))
		}
	}
	if _, err := order.TransitionTo(status, integration.TransitionSourceExternalSync, ext.StatusCode, now); err != nil {
		return err
	}

	mapping.ExternalStatus = ext.StatusCode
	mapping.Checksum = checksum
	mapping.UpdatedAt = now
	if err := s.orders.UpdateWithMapping(ctx, order, mapping); err != nil {
		return err
	}
	if held != nil {
		return held
	}
	report.Succeeded++
	return nil
}

func (s *OrderSynchronizer) quarantineOrder(ctx context.Context, run *integration.SyncRun, ext *integration.ExternalOrder, cause error, report *integration.RunReport) bool {
	var verr *integration.ValidationError
	if !errors.As(cause, &verr) {
		verr = integration.NewValidationError(integration.QuarantineReasonMalformedPayload, cause.Error())
	}

	record := integration.NewQuarantineRecord(run, ext.ExternalOrderID, verr, ext.RawPayload, s.now())
	if s.archive != nil && len(ext.RawPayload) > 0 {
		key := record.ArchiveObjectKey()
		if err := s.archive.Put(ctx, key, ext.RawPayload); err != nil {
			logger.Ctx(ctx, s.logger).Warn("Failed to archive quarantined payload, keeping it inline",
				zap.String("quarantine_id", record.ID.String()),
				zap.Error(err),
			)
		} else {
			record.ArchiveKey = key
			record.Payload = nil
		}
	}

	if err := s.quarantine.Create(ctx, record); err != nil {
		report.AddError(ext.ExternalOrderID, fmt.Errorf("quarantine order: %w", err))
		return false
	}
	report.AddQuarantine(ext.ExternalOrderID, verr)

	logger.Ctx(ctx, s.logger).Warn("Order quarantined",
		zap.String("external_order_id", ext.ExternalOrderID),
		zap.String("reason", string(verr.Reason)),
		zap.String("detail", verr.Detail),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishRecordQuarantined(ctx, record); err != nil {
			logger.Ctx(ctx, s.logger).Warn("Failed to publish quarantine event", zap.Error(err))
		}
	}
	return true
}
