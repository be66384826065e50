package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

// DefaultOrderLookbackDays is the order list window when no days filter is given
const DefaultOrderLookbackDays = 7

// OrderReader lists canonical orders and applies operator transitions
type OrderReader interface {
	List(ctx context.Context, filter integration.OrderFilter) ([]integration.Order, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*integration.Order, error)
	Transition(ctx context.Context, id uuid.UUID, status integration.CanonicalStatus) (*integration.Order, error)
}

// OrderHandler handles canonical order API endpoints
type OrderHandler struct {
	BaseHandler
	orders OrderReader
	badges *integration.BadgeTable
	now    func() time.Time
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders OrderReader, badges *integration.BadgeTable) *OrderHandler {
	if badges == nil {
		badges = integration.DefaultBadgeTable()
	}
	return &OrderHandler{
		orders: orders,
		badges: badges,
		now:    time.Now,
	}
}

// TransitionOrderRequest is an operator status change
type TransitionOrderRequest struct {
	Status string `json:"status" binding:"required" example:"PREPARING"`
}

// List godoc
// @ID           listOrders
// @Summary      List orders
// @Description  Canonical orders placed within the last N days, newest first
// @Tags         orders
// @Produce      json
// @Param        marketplace query string false "Marketplace ID"
// @Param        shop_code query string false "Shop code"
// @Param        status query string false "Comma separated canonical statuses"
// @Param        days query int false "Lookback window in days" default(7) maximum(365)
// @Param        order_by query string false "Sort field" Enums(ordered_at, updated_at, total_amount, status, marketplace)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	var query ListOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	statuses, err := query.Statuses()
	if err != nil {
		h.BadRequest(c, "Invalid status filter")
		return
	}
	if query.Days <= 0 {
		query.Days = DefaultOrderLookbackDays
	}
	query.Normalize()
	since := h.now().AddDate(0, 0, -query.Days)

	orders, total, err := h.orders.List(c.Request.Context(), integration.OrderFilter{
		Marketplace: integration.MarketplaceID(query.Marketplace),
		ShopCode:    query.ShopCode,
		Statuses:    statuses,
		Since:       &since,
		OrderBy:     query.OrderBy,
		OrderDir:    query.OrderDir,
		Page:        query.Page,
		PageSize:    query.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i], h.badges, false))
	}
	h.SuccessWithMeta(c, items, total, query.Page, query.PageSize)
}

// Get godoc
// @ID           getOrder
// @Summary      Get an order with its status history
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} APIResponse[OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	order, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(order, h.badges, true))
}

// Transition godoc
// @ID           transitionOrder
// @Summary      Change an order status
// @Description  Operator status change, recorded in the history with source "internal"
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        request body TransitionOrderRequest true "Target status"
// @Success      200 {object} APIResponse[OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /orders/{id}/status [patch]
func (h *OrderHandler) Transition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var req TransitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	status := integration.CanonicalStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	order, err := h.orders.Transition(c.Request.Context(), id, status)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(order, h.badges, true))
}
