package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// RunOutcome
// ---------------------------------------------------------------------------

// RunOutcome is the terminal (or running) state of a SyncRun
type RunOutcome string

const (
	RunOutcomeRunning   RunOutcome = "running"
	RunOutcomeSucceeded RunOutcome = "succeeded"
	RunOutcomePartial   RunOutcome = "partial"
	RunOutcomeFailed    RunOutcome = "failed"
)

// IsValid returns true if the outcome is valid
func (o RunOutcome) IsValid() bool {
	switch o {
	case RunOutcomeRunning, RunOutcomeSucceeded, RunOutcomePartial, RunOutcomeFailed:
		return true
	default:
		return false
	}
}

// IsClosed returns true for any outcome other than running
func (o RunOutcome) IsClosed() bool {
	return o != RunOutcomeRunning && o != ""
}

// RunTrigger records why a run started
type RunTrigger string

const (
	RunTriggerSchedule RunTrigger = "schedule"
	RunTriggerManual   RunTrigger = "manual"
	RunTriggerRetry    RunTrigger = "retry"
)

// ---------------------------------------------------------------------------
// RunReport
// ---------------------------------------------------------------------------

// RecordError is one per-record failure kept in a run's error detail
type RecordError struct {
	Ref     string     `json:"ref"`
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
}

// RunReport accumulates per-record results while a run executes
type RunReport struct {
	Processed   int
	Succeeded   int
	Unchanged   int
	Skipped     int
	Quarantined int
	Failed      int
	Drifted     int
	Errors      []RecordError
}

// AddError records a failed record
func (r *RunReport) AddError(ref string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RecordError{Ref: ref, Class: Classify(err), Message: err.Error()})
}

// AddQuarantine records a quarantined record; it counts toward error detail but not Failed
func (r *RunReport) AddQuarantine(ref string, err error) {
	r.Quarantined++
	r.Errors = append(r.Errors, RecordError{Ref: ref, Class: ErrorClassValidation, Message: err.Error()})
}

// Outcome derives the run outcome. Quarantined records make a run partial;
// a run fails only when every attempted record failed.
func (r *RunReport) Outcome() RunOutcome {
	switch {
	case r.Failed == 0 && r.Quarantined == 0:
		return RunOutcomeSucceeded
	case r.Failed > 0 && r.Succeeded+r.Unchanged+r.Quarantined == 0:
		return RunOutcomeFailed
	default:
		return RunOutcomePartial
	}
}

// ---------------------------------------------------------------------------
// SyncRun
// ---------------------------------------------------------------------------

// SyncRun is one execution of a reconciler or synchronizer for a (marketplace, kind) pair.
// Only the owning run mutates it; once closed the outcome is fixed.
type SyncRun struct {
	ID                 uuid.UUID
	Marketplace        MarketplaceID
	Kind               RunKind
	IdempotencyKey     string
	Trigger            RunTrigger
	Attempt            int
	Reconciliation     bool
	StartedAt          time.Time
	FinishedAt         *time.Time
	StartWatermark     Watermark
	Watermark          Watermark
	Outcome            RunOutcome
	Report             RunReport
	ErrorClass         ErrorClass
	ErrorMessage       string
	NeedsAttention     bool
	ManualIntervention bool
}

// NewSyncRun opens a run in the running state
func NewSyncRun(marketplace MarketplaceID, kind RunKind, trigger RunTrigger, attempt int, start Watermark, now time.Time) (*SyncRun, error) {
	if !marketplace.IsValid() {
		return nil, ErrInvalidMarketplace
	}
	if !kind.IsValid() {
		return nil, ErrInvalidRunKind
	}
	if attempt < 1 {
		attempt = 1
	}
	return &SyncRun{
		ID:             uuid.New(),
		Marketplace:    marketplace,
		Kind:           kind,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", marketplace, kind, now.UnixNano()),
		Trigger:        trigger,
		Attempt:        attempt,
		StartedAt:      now,
		StartWatermark: start,
		Watermark:      start,
		Outcome:        RunOutcomeRunning,
	}, nil
}

// AdvanceWatermark moves the watermark forward; an older position is ignored
func (r *SyncRun) AdvanceWatermark(w Watermark) error {
	if r.Outcome.IsClosed() {
		return ErrRunClosed
	}
	r.Watermark = r.Watermark.Max(w)
	return nil
}

// Close fixes the outcome from the report and an optional run-level error
func (r *SyncRun) Close(report *RunReport, runErr error, now time.Time) error {
	if r.Outcome.IsClosed() {
		return ErrRunClosed
	}
	if report != nil {
		r.Report = *report
	}
	r.FinishedAt = &now

	if runErr != nil {
		r.Outcome = RunOutcomeFailed
		r.ErrorClass = Classify(runErr)
		r.ErrorMessage = runErr.Error()
		return nil
	}
	r.Outcome = r.Report.Outcome()
	r.NeedsAttention = r.Outcome == RunOutcomePartial
	return nil
}

// Duration returns the elapsed run time
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SyncRunFilter narrows a run listing
type SyncRunFilter struct {
	Marketplace MarketplaceID
	Kind        RunKind
	Outcome     RunOutcome
	OrderBy     string
	OrderDir    string
	Page        int
	PageSize    int
}

// SyncRunRepository persists runs
type SyncRunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	// FindByID returns ErrRunNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*SyncRun, error)
	List(ctx context.Context, filter SyncRunFilter) ([]SyncRun, int64, error)
}

// SyncStateRepository stores the committed watermark per (marketplace, kind)
type SyncStateRepository interface {
	// GetWatermark returns the zero watermark when nothing has been committed
	GetWatermark(ctx context.Context, marketplace MarketplaceID, kind RunKind) (Watermark, error)
	// AdvanceWatermark stores w unless the stored watermark is already past it
	AdvanceWatermark(ctx context.Context, marketplace MarketplaceID, kind RunKind, w Watermark) error
}

// RunLock serializes runs of one (marketplace, kind) pair across processes
type RunLock interface {
	// TryAcquire returns ok=false without error when another holder owns key
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release frees key if token still owns it
	Release(ctx context.Context, key, token string) error
}

// RunLockKey is the lock key of a (marketplace, kind) pair
func RunLockKey(marketplace MarketplaceID, kind RunKind) string {
	return "sync:run:" + string(marketplace) + ":" + string(kind)
}
