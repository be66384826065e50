package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/logger"
)

// ---------------------------------------------------------------------------
// Executors and hooks
// ---------------------------------------------------------------------------

// RunExecutor performs the work of one sync run
type RunExecutor interface {
	Execute(ctx context.Context, run *integration.SyncRun) (*integration.RunReport, error)
}

// RunExecutorFunc adapts a function to RunExecutor
type RunExecutorFunc func(ctx context.Context, run *integration.SyncRun) (*integration.RunReport, error)

// Execute calls f(ctx, run)
func (f RunExecutorFunc) Execute(ctx context.Context, run *integration.SyncRun) (*integration.RunReport, error) {
	return f(ctx, run)
}

// RunRecorder receives every closed run, typically for metrics
type RunRecorder interface {
	RecordRun(ctx context.Context, run *integration.SyncRun)
}

// ---------------------------------------------------------------------------
// OrchestratorConfig
// ---------------------------------------------------------------------------

// Schedule is the interval trigger of one (marketplace, kind) pair
type Schedule struct {
	Marketplace integration.MarketplaceID
	Kind        integration.RunKind
	Interval    time.Duration
}

// OrchestratorConfig holds configuration for the sync orchestrator
type OrchestratorConfig struct {
	// Schedules lists the pairs triggered on an interval by Start
	Schedules []Schedule
	// RunTimeout bounds a single run
	RunTimeout time.Duration
	// LockTTL is how long the distributed run lock survives a crashed holder
	LockTTL time.Duration
	// MaxTransientRetries bounds automatic retries of transient failures before escalation
	MaxTransientRetries int
	// MaxPartialRetries bounds automatic retries of partial runs before escalation
	MaxPartialRetries int
	// RetryBaseDelay is the first retry delay; it doubles per attempt
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the retry delay
	RetryMaxDelay time.Duration
}

// DefaultOrchestratorConfig returns default configuration
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		RunTimeout:          15 * time.Minute,
		LockTTL:             16 * time.Minute,
		MaxTransientRetries: 3,
		MaxPartialRetries:   2,
		RetryBaseDelay:      30 * time.Second,
		RetryMaxDelay:       30 * time.Minute,
	}
}

// Validate validates the configuration
func (c *OrchestratorConfig) Validate() error {
	if c.RunTimeout <= 0 || c.LockTTL < c.RunTimeout {
		return ErrInvalidConfig
	}
	if c.MaxTransientRetries < 0 || c.MaxPartialRetries < 0 {
		return ErrInvalidConfig
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return ErrInvalidConfig
	}
	for _, s := range c.Schedules {
		if !s.Marketplace.IsValid() || !s.Kind.IsValid() || s.Interval <= 0 {
			return fmt.Errorf("%w: schedule %s/%s", ErrInvalidConfig, s.Marketplace, s.Kind)
		}
	}
	return nil
}

// retryDelay returns baseDelay * 2^(n-1), capped
func (c *OrchestratorConfig) retryDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := c.RetryBaseDelay
	for i := 1; i < n && delay < c.RetryMaxDelay; i++ {
		delay *= 2
	}
	return min(delay, c.RetryMaxDelay)
}

// ---------------------------------------------------------------------------
// Pair state
// ---------------------------------------------------------------------------

// RunPhase is whether a pair currently has a run in flight
type RunPhase string

const (
	RunPhaseIdle    RunPhase = "idle"
	RunPhaseRunning RunPhase = "running"
)

// PairState is the orchestrator's view of one (marketplace, kind) pair
type PairState struct {
	Marketplace        integration.MarketplaceID `json:"marketplace"`
	Kind               integration.RunKind       `json:"kind"`
	Phase              RunPhase                  `json:"phase"`
	Interval           time.Duration             `json:"interval"`
	CurrentRunID       *uuid.UUID                `json:"current_run_id,omitempty"`
	LastRunID          *uuid.UUID                `json:"last_run_id,omitempty"`
	LastOutcome        integration.RunOutcome    `json:"last_outcome,omitempty"`
	LastError          string                    `json:"last_error,omitempty"`
	LastStartedAt      *time.Time                `json:"last_started_at,omitempty"`
	LastFinishedAt     *time.Time                `json:"last_finished_at,omitempty"`
	TransientRetries   int                       `json:"transient_retries"`
	PartialRetries     int                       `json:"partial_retries"`
	NextRetryAt        *time.Time                `json:"next_retry_at,omitempty"`
	ManualIntervention bool                      `json:"manual_intervention"`
}

type pairState struct {
	PairState
	retryTimer *time.Timer
}

func (p *pairState) cancelRetry() {
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
	p.NextRetryAt = nil
}

// TriggerResult reports whether a trigger started a run
type TriggerResult struct {
	Started        bool      `json:"started"`
	RunID          uuid.UUID `json:"run_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// TriggerOption customizes a triggered run
type TriggerOption func(*triggerOptions)

type triggerOptions struct {
	reconciliation bool
	attempt        int
}

// WithReconciliation runs an explicit reconciliation pass that reprocesses the lookback window
func WithReconciliation() TriggerOption {
	return func(o *triggerOptions) { o.reconciliation = true }
}

func withAttempt(n int) TriggerOption {
	return func(o *triggerOptions) { o.attempt = n }
}

// settlement is what happens to a pair after a run closes
type settlement struct {
	retryIn        time.Duration
	attempt        int
	reconciliation bool
	escalation     string
}

// ---------------------------------------------------------------------------
// SyncOrchestrator
// ---------------------------------------------------------------------------

// SyncOrchestrator runs reconcilers and synchronizers per (marketplace, kind) pair.
// At most one run of a pair is in flight; a trigger that finds it running is a no-op.
type SyncOrchestrator struct {
	config    OrchestratorConfig
	runs      integration.SyncRunRepository
	state     integration.SyncStateRepository
	statuses  *integration.StatusMappingTable
	executors map[integration.RunKind]RunExecutor
	logger    *zap.Logger

	lock      integration.RunLock
	publisher integration.SyncEventPublisher
	recorder  RunRecorder
	now       func() time.Time

	mu        sync.Mutex
	pairs     map[string]*pairState
	stopped   bool
	ticking   bool
	baseCtx   context.Context
	cancel    context.CancelFunc
	runWG     sync.WaitGroup
	tickersWG sync.WaitGroup
}

// NewSyncOrchestrator creates a new sync orchestrator
func NewSyncOrchestrator(
	config OrchestratorConfig,
	runs integration.SyncRunRepository,
	state integration.SyncStateRepository,
	statuses *integration.StatusMappingTable,
	logger *zap.Logger,
) (*SyncOrchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	o := &SyncOrchestrator{
		config:    config,
		runs:      runs,
		state:     state,
		statuses:  statuses,
		executors: make(map[integration.RunKind]RunExecutor),
		logger:    logger,
		now:       time.Now,
		pairs:     make(map[string]*pairState),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
	for _, s := range config.Schedules {
		o.pairLocked(s.Marketplace, s.Kind).Interval = s.Interval
	}
	return o, nil
}

// RegisterExecutor sets the executor that performs runs of kind
func (o *SyncOrchestrator) RegisterExecutor(kind integration.RunKind, executor RunExecutor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executors[kind] = executor
}

// SetRunLock sets the distributed lock that serializes runs across processes
func (o *SyncOrchestrator) SetRunLock(lock integration.RunLock) {
	o.lock = lock
}

// SetEventPublisher sets the publisher for run outcome and escalation events
func (o *SyncOrchestrator) SetEventPublisher(publisher integration.SyncEventPublisher) {
	o.publisher = publisher
}

// SetRunRecorder sets the recorder that observes closed runs
func (o *SyncOrchestrator) SetRunRecorder(recorder RunRecorder) {
	o.recorder = recorder
}

// pairLocked returns the state of a pair, creating it. Callers hold o.mu.
func (o *SyncOrchestrator) pairLocked(marketplace integration.MarketplaceID, kind integration.RunKind) *pairState {
	key := integration.RunLockKey(marketplace, kind)
	p, ok := o.pairs[key]
	if !ok {
		p = &pairState{PairState: PairState{Marketplace: marketplace, Kind: kind, Phase: RunPhaseIdle}}
		o.pairs[key] = p
	}
	return p
}

// TriggerRun starts a run of the pair in the background. A pair that is
// already running, or that waits on a pending retry or on an operator,
// yields Started=false without an error.
func (o *SyncOrchestrator) TriggerRun(
	ctx context.Context,
	marketplace integration.MarketplaceID,
	kind integration.RunKind,
	trigger integration.RunTrigger,
	opts ...TriggerOption,
) (*TriggerResult, error) {
	if !marketplace.IsValid() {
		return nil, integration.ErrInvalidMarketplace
	}
	if !kind.IsValid() {
		return nil, integration.ErrInvalidRunKind
	}
	options := triggerOptions{attempt: 1}
	for _, opt := range opts {
		opt(&options)
	}

	// The status table only governs order ingestion
	if kind == integration.RunKindOrders && o.statuses != nil {
		if err := o.statuses.Blocked(marketplace); err != nil {
			return nil, err
		}
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, ErrOrchestratorStopped
	}
	executor, ok := o.executors[kind]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotRegistered, kind)
	}
	pair := o.pairLocked(marketplace, kind)
	if reason := o.admitLocked(pair, trigger); reason != "" {
		o.mu.Unlock()
		o.logger.Debug("Sync trigger ignored",
			zap.String("marketplace", marketplace.String()),
			zap.String("kind", kind.String()),
			zap.String("trigger", string(trigger)),
			zap.String("reason", reason),
		)
		return &TriggerResult{Started: false, Reason: reason}, nil
	}
	pair.Phase = RunPhaseRunning
	o.runWG.Add(1)
	baseCtx := o.baseCtx
	o.mu.Unlock()

	token := ""
	abort := func() {
		if token != "" {
			o.releaseLock(marketplace, kind, token)
		}
		o.mu.Lock()
		pair.Phase = RunPhaseIdle
		o.mu.Unlock()
		o.runWG.Done()
	}

	if o.lock != nil {
		tok, acquired, err := o.lock.TryAcquire(ctx, integration.RunLockKey(marketplace, kind), o.config.LockTTL)
		if err != nil {
			abort()
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !acquired {
			abort()
			return &TriggerResult{Started: false, Reason: "running in another process"}, nil
		}
		token = tok
	}

	start, err := o.state.GetWatermark(ctx, marketplace, kind)
	if err != nil {
		abort()
		return nil, fmt.Errorf("load watermark: %w", err)
	}
	run, err := integration.NewSyncRun(marketplace, kind, trigger, options.attempt, start, o.now().UTC())
	if err != nil {
		abort()
		return nil, err
	}
	run.Reconciliation = options.reconciliation
	if err := o.runs.Create(ctx, run); err != nil {
		abort()
		return nil, fmt.Errorf("create sync run: %w", err)
	}

	o.mu.Lock()
	runID := run.ID
	startedAt := run.StartedAt
	pair.CurrentRunID = &runID
	pair.LastStartedAt = &startedAt
	o.mu.Unlock()

	o.logger.Info("Sync run started",
		zap.String("run_id", run.ID.String()),
		zap.String("marketplace", marketplace.String()),
		zap.String("kind", kind.String()),
		zap.String("trigger", string(trigger)),
		zap.Int("attempt", run.Attempt),
		zap.Bool("reconciliation", run.Reconciliation),
		zap.String("watermark", start.Cursor()),
	)

	go o.execute(baseCtx, executor, run, token)

	return &TriggerResult{Started: true, RunID: run.ID, IdempotencyKey: run.IdempotencyKey}, nil
}

// admitLocked returns why a trigger may not start a run, or "" when it may.
// Callers hold o.mu.
func (o *SyncOrchestrator) admitLocked(pair *pairState, trigger integration.RunTrigger) string {
	if trigger == integration.RunTriggerRetry {
		// The timer has fired either way
		pair.retryTimer = nil
		pair.NextRetryAt = nil
	}
	if pair.Phase == RunPhaseRunning {
		return "already running"
	}
	switch trigger {
	case integration.RunTriggerManual:
		// An operator trigger overrides pending retries and clears escalation
		pair.cancelRetry()
		pair.TransientRetries = 0
		pair.PartialRetries = 0
		pair.ManualIntervention = false
	case integration.RunTriggerSchedule:
		if pair.ManualIntervention {
			return "awaiting manual intervention"
		}
		if pair.retryTimer != nil {
			return "retry pending"
		}
	}
	return ""
}

func (o *SyncOrchestrator) execute(ctx context.Context, executor RunExecutor, run *integration.SyncRun, token string) {
	defer o.runWG.Done()

	runCtx, runLog := logger.WithRun(ctx, o.logger, run.ID.String(), run.Marketplace.String(), run.Kind.String())
	runCtx, cancel := context.WithTimeout(runCtx, o.config.RunTimeout)
	report, runErr := executor.Execute(runCtx, run)
	cancel()

	if report == nil {
		report = &integration.RunReport{}
	}
	if err := run.Close(report, runErr, o.now().UTC()); err != nil {
		runLog.Error("Failed to close sync run", zap.Error(err))
	}

	o.mu.Lock()
	decision := o.settleLocked(o.pairLocked(run.Marketplace, run.Kind), run, runErr)
	o.mu.Unlock()
	if decision.escalation != "" {
		run.ManualIntervention = true
	}

	// Bookkeeping must survive a Stop that cancelled the run itself
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelPersist()

	if err := o.runs.Update(persistCtx, run); err != nil {
		runLog.Error("Failed to persist sync run", zap.Error(err))
	}
	if o.recorder != nil {
		o.recorder.RecordRun(persistCtx, run)
	}

	fields := []zap.Field{
		zap.String("outcome", string(run.Outcome)),
		zap.Duration("duration", run.Duration()),
		zap.Int("processed", run.Report.Processed),
		zap.Int("succeeded", run.Report.Succeeded),
		zap.Int("quarantined", run.Report.Quarantined),
		zap.Int("failed", run.Report.Failed),
		zap.String("watermark", run.Watermark.Cursor()),
	}
	switch run.Outcome {
	case integration.RunOutcomeFailed:
		runLog.Error("Sync run failed", append(fields,
			zap.String("error_class", string(run.ErrorClass)),
			zap.String("error", run.ErrorMessage),
		)...)
	case integration.RunOutcomePartial:
		runLog.Warn("Sync run finished with partial failure", fields...)
	default:
		runLog.Info("Sync run completed", fields...)
	}

	if o.publisher != nil {
		if err := o.publisher.PublishRunCompleted(persistCtx, run); err != nil {
			runLog.Warn("Failed to publish run completed event", zap.Error(err))
		}
		if decision.escalation != "" {
			if err := o.publisher.PublishRunEscalated(persistCtx, run, decision.escalation); err != nil {
				runLog.Warn("Failed to publish run escalation event", zap.Error(err))
			}
		}
	}
	if decision.escalation != "" {
		runLog.Error("Sync run requires manual intervention",
			zap.String("reason", decision.escalation),
		)
	}

	if token != "" {
		o.releaseLock(run.Marketplace, run.Kind, token)
	}
	o.finish(ctx, run, decision)
}

// settleLocked applies the retry policy to a closed run. Callers hold o.mu.
func (o *SyncOrchestrator) settleLocked(pair *pairState, run *integration.SyncRun, runErr error) settlement {
	next := settlement{attempt: run.Attempt + 1, reconciliation: run.Reconciliation}

	switch run.Outcome {
	case integration.RunOutcomeSucceeded:
		pair.TransientRetries = 0
		pair.PartialRetries = 0
		pair.ManualIntervention = false
		return settlement{}

	case integration.RunOutcomePartial:
		if pair.PartialRetries < o.config.MaxPartialRetries {
			pair.PartialRetries++
			next.retryIn = o.config.retryDelay(pair.PartialRetries)
			return next
		}
		next.escalation = fmt.Sprintf("run stayed partial after %d retries", pair.PartialRetries)

	default:
		switch run.ErrorClass {
		case integration.ErrorClassCancelled:
			return settlement{}
		case integration.ErrorClassTransient:
			if pair.TransientRetries < o.config.MaxTransientRetries {
				pair.TransientRetries++
				next.retryIn = max(o.config.retryDelay(pair.TransientRetries), integration.RetryAfterHint(runErr))
				return next
			}
			next.escalation = fmt.Sprintf("transient failure persisted after %d retries: %s", pair.TransientRetries, run.ErrorMessage)
		default:
			next.escalation = fmt.Sprintf("%s failure: %s", run.ErrorClass, run.ErrorMessage)
		}
	}

	pair.ManualIntervention = true
	return next
}

// finish returns the pair to idle and arms a pending retry
func (o *SyncOrchestrator) finish(ctx context.Context, run *integration.SyncRun, decision settlement) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pair := o.pairLocked(run.Marketplace, run.Kind)
	runID := run.ID
	pair.Phase = RunPhaseIdle
	pair.CurrentRunID = nil
	pair.LastRunID = &runID
	pair.LastOutcome = run.Outcome
	pair.LastError = run.ErrorMessage
	pair.LastFinishedAt = run.FinishedAt

	if decision.retryIn <= 0 || decision.escalation != "" || o.stopped {
		return
	}

	marketplace, kind := run.Marketplace, run.Kind
	opts := []TriggerOption{withAttempt(decision.attempt)}
	if decision.reconciliation {
		opts = append(opts, WithReconciliation())
	}
	retryAt := o.now().Add(decision.retryIn)
	pair.NextRetryAt = &retryAt
	pair.retryTimer = time.AfterFunc(decision.retryIn, func() {
		if _, err := o.TriggerRun(ctx, marketplace, kind, integration.RunTriggerRetry, opts...); err != nil {
			o.logger.Error("Failed to start sync retry",
				zap.String("marketplace", marketplace.String()),
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
		}
	})

	o.logger.Info("Sync run scheduled for retry",
		zap.String("marketplace", marketplace.String()),
		zap.String("kind", kind.String()),
		zap.Int("attempt", decision.attempt),
		zap.Duration("delay", decision.retryIn),
	)
}

func (o *SyncOrchestrator) releaseLock(marketplace integration.MarketplaceID, kind integration.RunKind, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.lock.Release(ctx, integration.RunLockKey(marketplace, kind), token); err != nil {
		o.logger.Warn("Failed to release run lock",
			zap.String("marketplace", marketplace.String()),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
}

// States returns a snapshot of every known pair, ordered by marketplace and kind
func (o *SyncOrchestrator) States() []PairState {
	o.mu.Lock()
	defer o.mu.Unlock()

	states := make([]PairState, 0, len(o.pairs))
	for _, p := range o.pairs {
		states = append(states, p.PairState)
	}
	slices.SortFunc(states, func(a, b PairState) int {
		if c := strings.Compare(string(a.Marketplace), string(b.Marketplace)); c != 0 {
			return c
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})
	return states
}
