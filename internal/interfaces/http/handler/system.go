package handler

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is the build version, overridden at link time
var Version = "dev"

// SystemHandler reports what this instance is running.
type SystemHandler struct {
	BaseHandler
	startTime        time.Time
	marketplaces     []string
	schedulerEnabled bool
}

// NewSystemHandler returns a handler describing the enabled marketplaces.
func NewSystemHandler(marketplaces []string, schedulerEnabled bool) *SystemHandler {
	return &SystemHandler{
		startTime:        time.Now(),
		marketplaces:     marketplaces,
		schedulerEnabled: schedulerEnabled,
	}
}

// SystemInfoResponse represents the system information response
// @name HandlerSystemInfoResponse
type SystemInfoResponse struct {
	Name             string    `json:"name" example:"marketsync"`
	Version          string    `json:"version" example:"1.4.0"`
	GoVersion        string    `json:"go_version" example:"go1.25.5"`
	StartedAt        time.Time `json:"started_at"`
	Uptime           string    `json:"uptime" example:"1h30m45s"`
	Marketplaces     []string  `json:"marketplaces"`
	SchedulerEnabled bool      `json:"scheduler_enabled"`
}

// GetSystemInfo godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Description  Returns the build version, uptime and the marketplaces this instance syncs
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	marketplaces := h.marketplaces
	if marketplaces == nil {
		marketplaces = []string{}
	}
	h.Success(c, SystemInfoResponse{
		Name:             "marketsync",
		Version:          Version,
		GoVersion:        runtime.Version(),
		StartedAt:        h.startTime.UTC(),
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
		Marketplaces:     marketplaces,
		SchedulerEnabled: h.schedulerEnabled,
	})
}
