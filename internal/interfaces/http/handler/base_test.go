package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
	"github.com/marketsync/backend/internal/infrastructure/auth"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
	"github.com/marketsync/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// setOperator simulates an authenticated request without an actual JWT
func setOperator(c *gin.Context, subject string) {
	middleware.SetClaims(c, &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}})
}

func newBaseContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandler_Envelopes(t *testing.T) {
	h := &BaseHandler{}

	c, w := newBaseContext()
	h.SuccessWithMeta(c, []string{"a", "b"}, 41, 2, 20)
	resp := decodeResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	c, w = newBaseContext()
	h.Accepted(c, gin.H{"run_id": "r1"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	c, w = newBaseContext()
	h.NoContent(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestBaseHandler_ErrorCarriesRequestID(t *testing.T) {
	h := &BaseHandler{}
	c, w := newBaseContext()
	c.Set(middleware.RequestIDKey, "req-77")

	h.BadRequest(c, "Invalid run ID format")

	resp := decodeResponse(t, w)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	assert.Equal(t, "req-77", resp.Error.RequestID)
}

func TestBaseHandler_BindError(t *testing.T) {
	type query struct {
		Days int `form:"days" binding:"omitempty,min=1,max=90"`
	}
	h := &BaseHandler{}

	c, w := newBaseContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/?days=365", nil)
	var q query
	h.BindError(c, c.ShouldBindQuery(&q))
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "days", resp.Error.Details[0].Field)

	c, w = newBaseContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	var body map[string]any
	h.BindError(c, c.ShouldBindJSON(&body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeBadRequest, decodeResponse(t, w).Error.Code)
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"domain not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"wrapped domain error", fmt.Errorf("load sku: %w", shared.ErrInsufficientStock), http.StatusUnprocessableEntity, dto.ErrCodeInsufficientStock},
		{"domain conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"order not found", integration.ErrOrderNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"sku not found", fmt.Errorf("load: %w", integration.ErrSKUNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"run not found", integration.ErrRunNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"quarantine resolved", integration.ErrQuarantineResolved, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"unknown marketplace", integration.ErrMarketplaceNotRegistered, http.StatusNotFound, dto.ErrCodeUnknownMarketplace},
		{"invalid run kind", integration.ErrInvalidRunKind, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{
			"blocked marketplace",
			&integration.ConfigurationError{Marketplace: "naver", Problems: []string{"no mapping for status \"X\""}},
			http.StatusUnprocessableEntity,
			dto.ErrCodeMarketplaceBlocked,
		},
		{"write conflict", &integration.ConflictError{Entity: "sku", ID: "1"}, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"orchestrator stopped", scheduler.ErrOrchestratorStopped, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable},
		{"executor missing", scheduler.ErrExecutorNotRegistered, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"unexpected", assert.AnError, http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newBaseContext()

			(&BaseHandler{}).HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.wantCode == dto.ErrCodeInternal {
				assert.NotContains(t, resp.Error.Message, assert.AnError.Error())
				assert.Len(t, c.Errors, 1)
			}
		})
	}
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	c, w := newBaseContext()
	(&BaseHandler{}).HandleError(c, nil)
	assert.Empty(t, w.Body.String())
}

func TestGetOperator(t *testing.T) {
	c, _ := newBaseContext()

	_, err := getOperator(c)
	assert.Error(t, err)

	setOperator(c, "ops@example.com")
	operator, err := getOperator(c)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", operator)
}
