package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

// SyncRunModel is the persistence model for a SyncRun (the sync log)
type SyncRunModel struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primary_key"`
	Marketplace        string     `gorm:"type:varchar(50);not null;index:idx_sync_runs_pair,priority:1"`
	Kind               string     `gorm:"type:varchar(20);not null;index:idx_sync_runs_pair,priority:2"`
	IdempotencyKey     string     `gorm:"type:varchar(150);not null;uniqueIndex:idx_sync_runs_idempotency"`
	Trigger            string     `gorm:"type:varchar(20);not null"`
	Attempt            int        `gorm:"not null;default:1"`
	Reconciliation     bool       `gorm:"not null;default:false"`
	StartedAt          time.Time  `gorm:"not null;index:idx_sync_runs_pair,priority:3"`
	FinishedAt         *time.Time
	StartWatermark     string     `gorm:"type:varchar(200)"`
	Watermark          string     `gorm:"type:varchar(200)"`
	Outcome            string     `gorm:"type:varchar(20);not null;index:idx_sync_runs_outcome"`
	Processed          int        `gorm:"not null;default:0"`
	Succeeded          int        `gorm:"not null;default:0"`
	Unchanged          int        `gorm:"not null;default:0"`
	Skipped            int        `gorm:"not null;default:0"`
	Quarantined        int        `gorm:"not null;default:0"`
	Failed             int        `gorm:"not null;default:0"`
	Drifted            int        `gorm:"not null;default:0"`
	ErrorDetailJSON    string     `gorm:"type:jsonb;column:error_detail;not null"`
	ErrorClass         string     `gorm:"type:varchar(20)"`
	ErrorMessage       string     `gorm:"type:text"`
	NeedsAttention     bool       `gorm:"not null;default:false"`
	ManualIntervention bool       `gorm:"not null;default:false"`
	DurationMs         int64      `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// FromDomain populates the model from a SyncRun
func (m *SyncRunModel) FromDomain(r *integration.SyncRun) {
	m.ID = r.ID
	m.Marketplace = string(r.Marketplace)
	m.Kind = string(r.Kind)
	m.IdempotencyKey = r.IdempotencyKey
	m.Trigger = string(r.Trigger)
	m.Attempt = r.Attempt
	m.Reconciliation = r.Reconciliation
	m.StartedAt = r.StartedAt
	m.FinishedAt = r.FinishedAt
	m.StartWatermark = r.StartWatermark.Cursor()
	m.Watermark = r.Watermark.Cursor()
	m.Outcome = string(r.Outcome)
	m.Processed = r.Report.Processed
	m.Succeeded = r.Report.Succeeded
	m.Unchanged = r.Report.Unchanged
	m.Skipped = r.Report.Skipped
	m.Quarantined = r.Report.Quarantined
	m.Failed = r.Report.Failed
	m.Drifted = r.Report.Drifted
	m.ErrorClass = string(r.ErrorClass)
	m.ErrorMessage = r.ErrorMessage
	m.NeedsAttention = r.NeedsAttention
	m.ManualIntervention = r.ManualIntervention
	m.DurationMs = r.Duration().Milliseconds()

	errs := r.Report.Errors
	if errs == nil {
		errs = []integration.RecordError{}
	}
	if raw, err := json.Marshal(errs); err == nil {
		m.ErrorDetailJSON = string(raw)
	}
}

// ToDomain converts the model to a SyncRun
func (m *SyncRunModel) ToDomain() *integration.SyncRun {
	run := &integration.SyncRun{
		ID:             m.ID,
		Marketplace:    integration.MarketplaceID(m.Marketplace),
		Kind:           integration.RunKind(m.Kind),
		IdempotencyKey: m.IdempotencyKey,
		Trigger:        integration.RunTrigger(m.Trigger),
		Attempt:        m.Attempt,
		Reconciliation: m.Reconciliation,
		StartedAt:      m.StartedAt,
		FinishedAt:     m.FinishedAt,
		Outcome:        integration.RunOutcome(m.Outcome),
		Report: integration.RunReport{
			Processed:   m.Processed,
			Succeeded:   m.Succeeded,
			Unchanged:   m.Unchanged,
			Skipped:     m.Skipped,
			Quarantined: m.Quarantined,
			Failed:      m.Failed,
			Drifted:     m.Drifted,
		},
		ErrorClass:         integration.ErrorClass(m.ErrorClass),
		ErrorMessage:       m.ErrorMessage,
		NeedsAttention:     m.NeedsAttention,
		ManualIntervention: m.ManualIntervention,
	}
	run.StartWatermark, _ = integration.ParseWatermark(m.StartWatermark)
	run.Watermark, _ = integration.ParseWatermark(m.Watermark)
	if m.ErrorDetailJSON != "" {
		_ = json.Unmarshal([]byte(m.ErrorDetailJSON), &run.Report.Errors)
	}
	return run
}

// SyncStateModel stores the committed watermark per (marketplace, kind)
type SyncStateModel struct {
	Marketplace  string    `gorm:"type:varchar(50);primaryKey"`
	Kind         string    `gorm:"type:varchar(20);primaryKey"`
	WatermarkAt  time.Time `gorm:"not null"`
	WatermarkKey string    `gorm:"type:varchar(150);not null;default:''"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncStateModel) TableName() string {
	return "sync_state"
}

// QuarantineRecordModel is a record held back for manual review
type QuarantineRecordModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	Marketplace string     `gorm:"type:varchar(50);not null;index:idx_quarantine_marketplace_status,priority:1"`
	Kind        string     `gorm:"type:varchar(20);not null"`
	RunID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_quarantine_run"`
	ExternalRef string     `gorm:"type:varchar(150);not null"`
	Reason      string     `gorm:"type:varchar(50);not null"`
	Detail      string     `gorm:"type:text"`
	Payload     []byte     `gorm:"type:bytea"`
	ArchiveKey  string     `gorm:"type:varchar(300)"`
	Status      string     `gorm:"type:varchar(20);not null;index:idx_quarantine_marketplace_status,priority:2"`
	ResolvedBy  string     `gorm:"type:varchar(100)"`
	CreatedAt   time.Time  `gorm:"not null"`
	ResolvedAt  *time.Time
}

// TableName returns the table name for GORM
func (QuarantineRecordModel) TableName() string {
	return "quarantine_records"
}

// QuarantineRecordModelFromDomain creates a model from a quarantine record
func QuarantineRecordModelFromDomain(q *integration.QuarantineRecord) *QuarantineRecordModel {
	return &QuarantineRecordModel{
		ID:          q.ID,
		Marketplace: string(q.Marketplace),
		Kind:        string(q.Kind),
		RunID:       q.RunID,
		ExternalRef: q.ExternalRef,
		Reason:      string(q.Reason),
		Detail:      q.Detail,
		Payload:     q.Payload,
		ArchiveKey:  q.ArchiveKey,
		Status:      string(q.Status),
		ResolvedBy:  q.ResolvedBy,
		CreatedAt:   q.CreatedAt,
		ResolvedAt:  q.ResolvedAt,
	}
}

// ToDomain converts the model to a quarantine record
func (m *QuarantineRecordModel) ToDomain() *integration.QuarantineRecord {
	return &integration.QuarantineRecord{
		ID:          m.ID,
		Marketplace: integration.MarketplaceID(m.Marketplace),
		Kind:        integration.RunKind(m.Kind),
		RunID:       m.RunID,
		ExternalRef: m.ExternalRef,
		Reason:      integration.QuarantineReason(m.Reason),
		Detail:      m.Detail,
		Payload:     m.Payload,
		ArchiveKey:  m.ArchiveKey,
		Status:      integration.QuarantineStatus(m.Status),
		ResolvedBy:  m.ResolvedBy,
		CreatedAt:   m.CreatedAt,
		ResolvedAt:  m.ResolvedAt,
	}
}

// AccessTokenModel stores the one live token per marketplace. The value is sealed.
type AccessTokenModel struct {
	Marketplace string    `gorm:"type:varchar(50);primaryKey"`
	SealedValue []byte    `gorm:"type:bytea;not null"`
	IssuedAt    time.Time `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"not null;index:idx_access_tokens_expires"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccessTokenModel) TableName() string {
	return "access_tokens"
}
