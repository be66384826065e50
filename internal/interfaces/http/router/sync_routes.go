package router

import (
	"github.com/gin-gonic/gin"

	"github.com/marketsync/backend/internal/infrastructure/auth"
	"github.com/marketsync/backend/internal/interfaces/http/handler"
	"github.com/marketsync/backend/internal/interfaces/http/middleware"
)

// SyncAPIHandlers bundles the handlers served under /api/v1
type SyncAPIHandlers struct {
	Sync       *handler.SyncHandler
	Quarantine *handler.QuarantineHandler
	Order      *handler.OrderHandler
	Stock      *handler.StockHandler
	Status     *handler.StatusHandler
}

// SyncAPIGroups builds the domain groups of the sync API. Every group runs
// authenticate first, then any further middlewares; reads need sync:read and
// mutations need sync:write.
func SyncAPIGroups(h SyncAPIHandlers, authenticate gin.HandlerFunc, middlewares ...gin.HandlerFunc) []*DomainGroup {
	common := append([]gin.HandlerFunc{authenticate}, middlewares...)
	read := middleware.RequireScope(auth.ScopeSyncRead)
	write := middleware.RequireScope(auth.ScopeSyncWrite)

	syncGroup := NewDomainGroup("sync", "/sync").Use(common...)
	syncGroup.GET("/states", read, h.Sync.States).
		GET("/runs", read, h.Sync.ListRuns).
		GET("/runs/:id", read, h.Sync.GetRun).
		POST("/:marketplace/:kind/trigger", write, h.Sync.Trigger)

	quarantine := NewDomainGroup("quarantine", "/quarantine").Use(common...)
	quarantine.GET("", read, h.Quarantine.List).
		GET("/:id", read, h.Quarantine.Get).
		GET("/:id/payload", read, h.Quarantine.Payload).
		POST("/:id/resolve", write, h.Quarantine.Resolve)

	orders := NewDomainGroup("orders", "/orders").Use(common...)
	orders.GET("", read, h.Order.List).
		GET("/:id", read, h.Order.Get).
		PATCH("/:id/status", write, h.Order.Transition)

	skus := NewDomainGroup("skus", "/skus").Use(common...)
	skus.POST("/:id/stock", write, h.Stock.Mutate)

	status := NewDomainGroup("status", "").Use(common...)
	status.GET("/status-mappings", read, h.Status.Mappings).
		GET("/status-badges", read, h.Status.Badges)

	return []*DomainGroup{syncGroup, quarantine, orders, skus, status}
}

// RegisterSyncAPI registers the sync API groups on the router
func RegisterSyncAPI(r *Router, h SyncAPIHandlers, authenticate gin.HandlerFunc, middlewares ...gin.HandlerFunc) *Router {
	for _, g := range SyncAPIGroups(h, authenticate, middlewares...) {
		r.Register(g)
	}
	return r
}
