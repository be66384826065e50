package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/auth"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/interfaces/http/handler"
	"github.com/marketsync/backend/internal/interfaces/http/middleware"
)

func newSyncAPIEngine(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "router-test-secret-at-least-32-chars",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "router-test",
	})

	table, err := integration.NewStatusMappingTable([]integration.StatusMappingEntry{
		{Marketplace: "naver", ExternalCode: "PAYED", Canonical: integration.StatusPaid},
	}, nil)
	require.NoError(t, err)

	engine := gin.New()
	r := NewRouter(engine)
	RegisterSyncAPI(r, SyncAPIHandlers{
		Sync:       handler.NewSyncHandler(nil, nil),
		Quarantine: handler.NewQuarantineHandler(nil),
		Order:      handler.NewOrderHandler(nil, nil),
		Stock:      handler.NewStockHandler(nil, nil),
		Status:     handler.NewStatusHandler(table, nil),
	}, middleware.Authenticate(jwtService, nil))
	r.Setup()

	return engine, jwtService
}

func TestSyncAPIGroups_RegistersRoutes(t *testing.T) {
	engine, _ := newSyncAPIEngine(t)

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /api/v1/sync/states",
		"GET /api/v1/sync/runs",
		"GET /api/v1/sync/runs/:id",
		"POST /api/v1/sync/:marketplace/:kind/trigger",
		"GET /api/v1/quarantine",
		"GET /api/v1/quarantine/:id",
		"GET /api/v1/quarantine/:id/payload",
		"POST /api/v1/quarantine/:id/resolve",
		"GET /api/v1/orders",
		"GET /api/v1/orders/:id",
		"PATCH /api/v1/orders/:id/status",
		"POST /api/v1/skus/:id/stock",
		"GET /api/v1/status-mappings",
		"GET /api/v1/status-badges",
	}
	for _, route := range expected {
		assert.True(t, registered[route], "route %s should be registered", route)
	}
}

func TestSyncAPIGroups_Authorization(t *testing.T) {
	engine, jwtService := newSyncAPIEngine(t)

	readToken, _, err := jwtService.IssueToken("viewer@example.com", []string{auth.ScopeSyncRead})
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"read without token", http.MethodGet, "/api/v1/status-mappings", "", http.StatusUnauthorized},
		{"read with read scope", http.MethodGet, "/api/v1/status-mappings", readToken, http.StatusOK},
		{"badges with read scope", http.MethodGet, "/api/v1/status-badges", readToken, http.StatusOK},
		{"trigger without write scope", http.MethodPost, "/api/v1/sync/naver/orders/trigger", readToken, http.StatusForbidden},
		{"resolve without write scope", http.MethodPost, "/api/v1/quarantine/6c1f0a52-8a70-4c8e-9b43-3a1c2b3d4e5f/resolve", readToken, http.StatusForbidden},
		{"stock without write scope", http.MethodPost, "/api/v1/skus/6c1f0a52-8a70-4c8e-9b43-3a1c2b3d4e5f/stock", readToken, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
