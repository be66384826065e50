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

// PayloadReader reads back archived quarantine payloads
type PayloadReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// QuarantineService is the operator review queue for quarantined records
type QuarantineService struct {
	records integration.QuarantineRepository
	archive PayloadReader
	logger  *zap.Logger
	now     func() time.Time
}

// NewQuarantineService creates a quarantine service. archive may be nil when
// payloads are always kept inline.
func NewQuarantineService(records integration.QuarantineRepository, archive PayloadReader, logger *zap.Logger) *QuarantineService {
	return &QuarantineService{records: records, archive: archive, logger: logger, now: time.Now}
}

// List returns quarantine records matching filter
func (s *QuarantineService) List(ctx context.Context, filter integration.QuarantineFilter) ([]integration.QuarantineRecord, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return s.records.List(ctx, filter)
}

// Get returns one record
func (s *QuarantineService) Get(ctx context.Context, id uuid.UUID) (*integration.QuarantineRecord, error) {
	return s.records.FindByID(ctx, id)
}

// Resolve marks a record as reviewed by the given operator
func (s *QuarantineService) Resolve(ctx context.Context, id uuid.UUID, by string) (*integration.QuarantineRecord, error) {
	if by == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Resolver is required")
	}
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := record.Resolve(by, s.now()); err != nil {
		return nil, err
	}
	if err := s.records.Update(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("Quarantine record resolved",
		zap.String("quarantine_id", id.String()),
		zap.String("marketplace", record.Marketplace.String()),
		zap.String("external_ref", record.ExternalRef),
		zap.String("resolved_by", by),
	)
	return record, nil
}

// Payload returns the raw marketplace payload, reading the archive when the
// record no longer carries it inline.
func (s *QuarantineService) Payload(ctx context.Context, id uuid.UUID) ([]byte, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(record.Payload) > 0 || record.ArchiveKey == "" {
		return record.Payload, nil
	}
	if s.archive == nil {
		return nil, fmt.Errorf("payload %s is archived but no archive is configured", record.ArchiveKey)
	}
	data, err := s.archive.Get(ctx, record.ArchiveKey)
	if err != nil {
		return nil, fmt.Errorf("read archived payload: %w", err)
	}
	return data, nil
}
