package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
)

// RunTriggerer starts runs and reports per-pair state
type RunTriggerer interface {
	TriggerRun(ctx context.Context, marketplace integration.MarketplaceID, kind integration.RunKind, trigger integration.RunTrigger, opts ...scheduler.TriggerOption) (*scheduler.TriggerResult, error)
	States() []scheduler.PairState
}

// RunReader reads the sync run log
type RunReader interface {
	List(ctx context.Context, filter integration.SyncRunFilter) ([]integration.SyncRun, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*integration.SyncRun, error)
}

// SyncHandler handles sync run API endpoints
type SyncHandler struct {
	BaseHandler
	orchestrator RunTriggerer
	runs         RunReader
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(orchestrator RunTriggerer, runs RunReader) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		runs:         runs,
	}
}

// Trigger godoc
// @ID           triggerSyncRun
// @Summary      Trigger a sync run
// @Description  Start an inventory or order run for one marketplace. A pair that is already running is left alone.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        marketplace path string true "Marketplace ID"
// @Param        kind path string true "Run kind" Enums(inventory, orders)
// @Param        request body TriggerRunRequest false "Trigger options"
// @Success      202 {object} APIResponse[TriggerRunResponse]
// @Success      200 {object} APIResponse[TriggerRunResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/{marketplace}/{kind}/trigger [post]
func (h *SyncHandler) Trigger(c *gin.Context) {
	marketplace := integration.MarketplaceID(c.Param("marketplace"))
	if !marketplace.IsValid() {
		h.BadRequest(c, "Invalid marketplace id")
		return
	}
	kind := integration.RunKind(c.Param("kind"))
	if !kind.IsValid() {
		h.BadRequest(c, "Run kind must be inventory or orders")
		return
	}

	var req TriggerRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.BindError(c, err)
			return
		}
	}

	var opts []scheduler.TriggerOption
	if req.Reconciliation {
		opts = append(opts, scheduler.WithReconciliation())
	}

	result, err := h.orchestrator.TriggerRun(c.Request.Context(), marketplace, kind, integration.RunTriggerManual, opts...)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := TriggerRunResponse{
		Started:        result.Started,
		IdempotencyKey: result.IdempotencyKey,
		Reason:         result.Reason,
	}
	if result.RunID != uuid.Nil {
		resp.RunID = result.RunID.String()
	}
	if result.Started {
		h.Accepted(c, resp)
		return
	}
	h.Success(c, resp)
}

// States godoc
// @ID           listSyncStates
// @Summary      List sync pair states
// @Description  Current phase, last outcome and retry state of every (marketplace, kind) pair
// @Tags         sync
// @Produce      json
// @Success      200 {object} APIResponse[[]scheduler.PairState]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/states [get]
func (h *SyncHandler) States(c *gin.Context) {
	h.Success(c, h.orchestrator.States())
}

// ListRuns godoc
// @ID           listSyncRuns
// @Summary      List sync runs
// @Description  Paginated run log, newest first
// @Tags         sync
// @Produce      json
// @Param        marketplace query string false "Marketplace ID"
// @Param        kind query string false "Run kind" Enums(inventory, orders)
// @Param        outcome query string false "Outcome" Enums(running, succeeded, partial, failed)
// @Param        order_by query string false "Sort field" Enums(started_at, finished_at, processed, failed, quarantined)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]SyncRunResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	var query ListRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	query.Normalize()

	filter := integration.SyncRunFilter{
		Marketplace: integration.MarketplaceID(query.Marketplace),
		Kind:        integration.RunKind(query.Kind),
		Outcome:     integration.RunOutcome(query.Outcome),
		OrderBy:     query.OrderBy,
		OrderDir:    query.OrderDir,
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	runs, total, err := h.runs.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]SyncRunResponse, 0, len(runs))
	for i := range runs {
		items = append(items, toSyncRunResponse(&runs[i]))
	}
	h.SuccessWithMeta(c, items, total, query.Page, query.PageSize)
}

// GetRun godoc
// @ID           getSyncRun
// @Summary      Get a sync run
// @Tags         sync
// @Produce      json
// @Param        id path string true "Run ID" format(uuid)
// @Success      200 {object} APIResponse[SyncRunResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/runs/{id} [get]
func (h *SyncHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	run, err := h.runs.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSyncRunResponse(run))
}
