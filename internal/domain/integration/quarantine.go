package integration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QuarantineReason names why a record was held back
type QuarantineReason string

const (
	QuarantineReasonUnmappedStatus         QuarantineReason = "UNMAPPED_STATUS"
	QuarantineReasonMalformedPayload       QuarantineReason = "MALFORMED_PAYLOAD"
	QuarantineReasonTerminalLineItemChange QuarantineReason = "TERMINAL_LINE_ITEM_CHANGE"
)

// QuarantineStatus tracks manual review
type QuarantineStatus string

const (
	QuarantineStatusOpen     QuarantineStatus = "open"
	QuarantineStatusResolved QuarantineStatus = "resolved"
)

// QuarantineRecord is a record marked unprocessed-pending-review
type QuarantineRecord struct {
	ID          uuid.UUID
	Marketplace MarketplaceID
	Kind        RunKind
	RunID       uuid.UUID
	ExternalRef string
	Reason      QuarantineReason
	Detail      string
	Payload     []byte
	ArchiveKey  string
	Status      QuarantineStatus
	ResolvedBy  string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// NewQuarantineRecord opens a quarantine record for a validation failure
func NewQuarantineRecord(run *SyncRun, externalRef string, verr *ValidationError, payload []byte, now time.Time) *QuarantineRecord {
	return &QuarantineRecord{
		ID:          uuid.New(),
		Marketplace: run.Marketplace,
		Kind:        run.Kind,
		RunID:       run.ID,
		ExternalRef: externalRef,
		Reason:      verr.Reason,
		Detail:      verr.Detail,
		Payload:     payload,
		Status:      QuarantineStatusOpen,
		CreatedAt:   now,
	}
}

// Resolve closes the record after review
func (q *QuarantineRecord) Resolve(by string, now time.Time) error {
	if q.Status == QuarantineStatusResolved {
		return ErrQuarantineResolved
	}
	q.Status = QuarantineStatusResolved
	q.ResolvedBy = strings.TrimSpace(by)
	q.ResolvedAt = &now
	return nil
}

// ArchiveObjectKey returns the object storage key for the record's payload
func (q *QuarantineRecord) ArchiveObjectKey() string {
	return "quarantine/" + string(q.Marketplace) + "/" + q.CreatedAt.UTC().Format("2006/01/02") + "/" + q.ID.String() + ".json"
}

// QuarantineFilter narrows a quarantine listing
type QuarantineFilter struct {
	Marketplace MarketplaceID
	Status      QuarantineStatus
	Reason      QuarantineReason
	Page        int
	PageSize    int
}

// QuarantineRepository persists quarantine records
type QuarantineRepository interface {
	Create(ctx context.Context, record *QuarantineRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*QuarantineRecord, error)
	Update(ctx context.Context, record *QuarantineRecord) error
	List(ctx context.Context, filter QuarantineFilter) ([]QuarantineRecord, int64, error)
}

// PayloadArchive keeps raw payloads of quarantined records out of the database
type PayloadArchive interface {
	Put(ctx context.Context, key string, payload []byte) error
}

// SyncEventPublisher announces run outcomes, escalations and quarantines to operators
type SyncEventPublisher interface {
	PublishRunCompleted(ctx context.Context, run *SyncRun) error
	PublishRunEscalated(ctx context.Context, run *SyncRun, reason string) error
	PublishRecordQuarantined(ctx context.Context, record *QuarantineRecord) error
}
