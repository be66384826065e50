package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

// StockMutator applies local stock changes to a SKU
type StockMutator interface {
	RecordSale(ctx context.Context, skuID uuid.UUID, quantity int) (*integration.ListingSKU, error)
	RecordReturn(ctx context.Context, skuID uuid.UUID, quantity int) (*integration.ListingSKU, error)
	Adjust(ctx context.Context, skuID uuid.UUID, quantity int) (*integration.ListingSKU, error)
}

// StockHandler handles SKU stock API endpoints
type StockHandler struct {
	BaseHandler
	stock  StockMutator
	badges *integration.BadgeTable
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(stock StockMutator, badges *integration.BadgeTable) *StockHandler {
	if badges == nil {
		badges = integration.DefaultBadgeTable()
	}
	return &StockHandler{stock: stock, badges: badges}
}

// Mutate godoc
// @ID           mutateSkuStock
// @Summary      Record a stock change
// @Description  Sale and return change stock by quantity; adjust sets the counted quantity
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        id path string true "SKU ID" format(uuid)
// @Param        request body StockMutationRequest true "Stock change"
// @Success      200 {object} APIResponse[SKUStockResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /skus/{id}/stock [post]
func (h *StockHandler) Mutate(c *gin.Context) {
	skuID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid SKU ID format")
		return
	}

	var req StockMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := c.Request.Context()
	var sku *integration.ListingSKU
	switch req.Type {
	case StockMutationSale:
		sku, err = h.stock.RecordSale(ctx, skuID, *req.Quantity)
	case StockMutationReturn:
		sku, err = h.stock.RecordReturn(ctx, skuID, *req.Quantity)
	case StockMutationAdjust:
		sku, err = h.stock.Adjust(ctx, skuID, *req.Quantity)
	default:
		h.BadRequest(c, "Unknown stock mutation type")
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSKUStockResponse(sku, h.badges))
}
