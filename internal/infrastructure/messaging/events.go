// Package messaging publishes sync lifecycle events as CloudEvents.
package messaging

import (
	"fmt"
	"time"

	ceevent "github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

// Event types; they double as AMQP routing keys
const (
	EventTypeRunCompleted     = "marketsync.run.completed"
	EventTypeRunEscalated     = "marketsync.run.escalated"
	EventTypeRecordQuarantined = "marketsync.record.quarantined"
)

// DefaultSource is the CloudEvents source used when none is configured
const DefaultSource = "/marketsync/backend"

// RunEventData is the payload of run completed and escalated events
type RunEventData struct {
	RunID              string     `json:"run_id"`
	Marketplace        string     `json:"marketplace"`
	Kind               string     `json:"kind"`
	Trigger            string     `json:"trigger"`
	Attempt            int        `json:"attempt"`
	Outcome            string     `json:"outcome"`
	Processed          int        `json:"processed"`
	Succeeded          int        `json:"succeeded"`
	Quarantined        int        `json:"quarantined"`
	Failed             int        `json:"failed"`
	ErrorClass         string     `json:"error_class,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	Watermark          string     `json:"watermark,omitempty"`
	NeedsAttention     bool       `json:"needs_attention"`
	ManualIntervention bool       `json:"manual_intervention"`
	Reason             string     `json:"reason,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
}

// QuarantineEventData is the payload of record quarantined events
type QuarantineEventData struct {
	QuarantineID string    `json:"quarantine_id"`
	RunID        string    `json:"run_id"`
	Marketplace  string    `json:"marketplace"`
	Kind         string    `json:"kind"`
	ExternalRef  string    `json:"external_ref"`
	Reason       string    `json:"reason"`
	Detail       string    `json:"detail"`
	ArchiveKey   string    `json:"archive_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newRunEventData(run *integration.SyncRun, reason string) RunEventData {
	return RunEventData{
		RunID:              run.ID.String(),
		Marketplace:        run.Marketplace.String(),
		Kind:               string(run.Kind),
		Trigger:            string(run.Trigger),
		Attempt:            run.Attempt,
		Outcome:            string(run.Outcome),
		Processed:          run.Report.Processed,
		Succeeded:          run.Report.Succeeded,
		Quarantined:        run.Report.Quarantined,
		Failed:             run.Report.Failed,
		ErrorClass:         string(run.ErrorClass),
		ErrorMessage:       run.ErrorMessage,
		Watermark:          run.Watermark.Cursor(),
		NeedsAttention:     run.NeedsAttention,
		ManualIntervention: run.ManualIntervention,
		Reason:             reason,
		StartedAt:          run.StartedAt,
		FinishedAt:         run.FinishedAt,
	}
}

func newQuarantineEventData(record *integration.QuarantineRecord) QuarantineEventData {
	return QuarantineEventData{
		QuarantineID: record.ID.String(),
		RunID:        record.RunID.String(),
		Marketplace:  record.Marketplace.String(),
		Kind:         string(record.Kind),
		ExternalRef:  record.ExternalRef,
		Reason:       string(record.Reason),
		Detail:       record.Detail,
		ArchiveKey:   record.ArchiveKey,
		CreatedAt:    record.CreatedAt,
	}
}

// NewRunEvent builds a run completed or escalated event
func NewRunEvent(source, eventType string, run *integration.SyncRun, reason string, now time.Time) (ceevent.Event, error) {
	return newEvent(source, eventType, run.Marketplace.String()+"/"+string(run.Kind), newRunEventData(run, reason), now)
}

// NewQuarantineEvent builds a record quarantined event
func NewQuarantineEvent(source string, record *integration.QuarantineRecord, now time.Time) (ceevent.Event, error) {
	return newEvent(source, EventTypeRecordQuarantined, record.Marketplace.String()+"/"+record.ExternalRef, newQuarantineEventData(record), now)
}

func newEvent(source, eventType, subject string, data any, now time.Time) (ceevent.Event, error) {
	if source == "" {
		source = DefaultSource
	}
	e := ceevent.New()
	e.SetID(uuid.NewString())
	e.SetSource(source)
	e.SetType(eventType)
	e.SetSubject(subject)
	e.SetTime(now.UTC())
	if err := e.SetData(ceevent.ApplicationJSON, data); err != nil {
		return e, fmt.Errorf("encode %s data: %w", eventType, err)
	}
	if err := e.Validate(); err != nil {
		return e, fmt.Errorf("invalid %s event: %w", eventType, err)
	}
	return e, nil
}
