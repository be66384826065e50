package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/marketsync/backend/internal/domain/integration"
)

// StatusHandler serves the status mapping table and the badge table the dashboard renders from
type StatusHandler struct {
	BaseHandler
	table  *integration.StatusMappingTable
	badges *integration.BadgeTable
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(table *integration.StatusMappingTable, badges *integration.BadgeTable) *StatusHandler {
	if badges == nil {
		badges = integration.DefaultBadgeTable()
	}
	return &StatusHandler{table: table, badges: badges}
}

// BlockedMarketplaceResponse lists why a marketplace is blocked
type BlockedMarketplaceResponse struct {
	Marketplace string   `json:"marketplace" example:"coupang"`
	Problems    []string `json:"problems"`
}

// StatusMappingsResponse is the full mapping table
type StatusMappingsResponse struct {
	Mappings []StatusMappingResponse      `json:"mappings"`
	Blocked  []BlockedMarketplaceResponse `json:"blocked"`
}

// Mappings godoc
// @ID           listStatusMappings
// @Summary      List status mappings
// @Description  Every external status code with its canonical status, plus marketplaces blocked by configuration errors
// @Tags         status
// @Produce      json
// @Param        marketplace query string false "Marketplace ID"
// @Success      200 {object} APIResponse[StatusMappingsResponse]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /status-mappings [get]
func (h *StatusHandler) Mappings(c *gin.Context) {
	marketplace := integration.MarketplaceID(c.Query("marketplace"))

	resp := StatusMappingsResponse{
		Mappings: make([]StatusMappingResponse, 0),
		Blocked:  make([]BlockedMarketplaceResponse, 0),
	}
	for _, entry := range h.table.Snapshot() {
		if marketplace != "" && entry.Marketplace != marketplace {
			continue
		}
		resp.Mappings = append(resp.Mappings, StatusMappingResponse{
			Marketplace:  entry.Marketplace.String(),
			ExternalCode: entry.ExternalCode,
			Canonical:    entry.Canonical.String(),
			Badge:        h.badges.OrderBadge(entry.Canonical),
		})
	}
	for _, cfgErr := range h.table.BlockedMarketplaces() {
		if marketplace != "" && cfgErr.Marketplace != marketplace {
			continue
		}
		resp.Blocked = append(resp.Blocked, BlockedMarketplaceResponse{
			Marketplace: cfgErr.Marketplace.String(),
			Problems:    cfgErr.Problems,
		})
	}
	h.Success(c, resp)
}

// Badges godoc
// @ID           getStatusBadges
// @Summary      Get the badge table
// @Description  Labels and tones for order, inventory, channel and other status badges
// @Tags         status
// @Produce      json
// @Success      200 {object} APIResponse[integration.BadgeTable]
// @Security     BearerAuth
// @Router       /status-badges [get]
func (h *StatusHandler) Badges(c *gin.Context) {
	h.Success(c, h.badges)
}
