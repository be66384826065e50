package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

// QuarantineReviewer is the operator review queue
type QuarantineReviewer interface {
	List(ctx context.Context, filter integration.QuarantineFilter) ([]integration.QuarantineRecord, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*integration.QuarantineRecord, error)
	Resolve(ctx context.Context, id uuid.UUID, by string) (*integration.QuarantineRecord, error)
	Payload(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// QuarantineHandler handles quarantine review API endpoints
type QuarantineHandler struct {
	BaseHandler
	quarantine QuarantineReviewer
}

// NewQuarantineHandler creates a new QuarantineHandler
func NewQuarantineHandler(quarantine QuarantineReviewer) *QuarantineHandler {
	return &QuarantineHandler{quarantine: quarantine}
}

// List godoc
// @ID           listQuarantine
// @Summary      List quarantined records
// @Tags         quarantine
// @Produce      json
// @Param        marketplace query string false "Marketplace ID"
// @Param        status query string false "Review status" Enums(open, resolved)
// @Param        reason query string false "Quarantine reason"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]QuarantineResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /quarantine [get]
func (h *QuarantineHandler) List(c *gin.Context) {
	var query ListQuarantineQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	query.Normalize()

	records, total, err := h.quarantine.List(c.Request.Context(), integration.QuarantineFilter{
		Marketplace: integration.MarketplaceID(query.Marketplace),
		Status:      integration.QuarantineStatus(query.Status),
		Reason:      integration.QuarantineReason(query.Reason),
		Page:        query.Page,
		PageSize:    query.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]QuarantineResponse, 0, len(records))
	for i := range records {
		items = append(items, toQuarantineResponse(&records[i]))
	}
	h.SuccessWithMeta(c, items, total, query.Page, query.PageSize)
}

// Get godoc
// @ID           getQuarantine
// @Summary      Get a quarantined record
// @Tags         quarantine
// @Produce      json
// @Param        id path string true "Quarantine record ID" format(uuid)
// @Success      200 {object} APIResponse[QuarantineResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /quarantine/{id} [get]
func (h *QuarantineHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quarantine record ID format")
		return
	}

	record, err := h.quarantine.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toQuarantineResponse(record))
}

// Payload godoc
// @ID           getQuarantinePayload
// @Summary      Get the raw marketplace payload of a quarantined record
// @Tags         quarantine
// @Produce      json
// @Param        id path string true "Quarantine record ID" format(uuid)
// @Success      200 {string} string "Raw payload"
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /quarantine/{id}/payload [get]
func (h *QuarantineHandler) Payload(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quarantine record ID format")
		return
	}

	payload, err := h.quarantine.Payload(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if len(payload) == 0 {
		h.NoContent(c)
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// Resolve godoc
// @ID           resolveQuarantine
// @Summary      Resolve a quarantined record
// @Description  Mark a record as reviewed. The resolver is the authenticated operator.
// @Tags         quarantine
// @Produce      json
// @Param        id path string true "Quarantine record ID" format(uuid)
// @Success      200 {object} APIResponse[QuarantineResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /quarantine/{id}/resolve [post]
func (h *QuarantineHandler) Resolve(c *gin.Context) {
	operator, err := getOperator(c)
	if err != nil {
		h.Unauthorized(c, "Operator identity required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid quarantine record ID format")
		return
	}

	record, err := h.quarantine.Resolve(c.Request.Context(), id, operator)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toQuarantineResponse(record))
}
