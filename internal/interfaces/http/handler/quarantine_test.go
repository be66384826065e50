package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
)

type mockQuarantineReviewer struct {
	mock.Mock
}

func (m *mockQuarantineReviewer) List(ctx context.Context, filter integration.QuarantineFilter) ([]integration.QuarantineRecord, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]integration.QuarantineRecord), args.Get(1).(int64), args.Error(2)
}

func (m *mockQuarantineReviewer) Get(ctx context.Context, id uuid.UUID) (*integration.QuarantineRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.QuarantineRecord), args.Error(1)
}

func (m *mockQuarantineReviewer) Resolve(ctx context.Context, id uuid.UUID, by string) (*integration.QuarantineRecord, error) {
	args := m.Called(ctx, id, by)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.QuarantineRecord), args.Error(1)
}

func (m *mockQuarantineReviewer) Payload(ctx context.Context, id uuid.UUID) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func setupQuarantineTestHandler() (*QuarantineHandler, *mockQuarantineReviewer) {
	gin.SetMode(gin.TestMode)
	reviewer := new(mockQuarantineReviewer)
	return NewQuarantineHandler(reviewer), reviewer
}

func createTestQuarantineRecord() *integration.QuarantineRecord {
	return &integration.QuarantineRecord{
		ID:          uuid.New(),
		Marketplace: "naver",
		Kind:        integration.RunKindOrders,
		RunID:       uuid.New(),
		ExternalRef: "2026030112345",
		Reason:      integration.QuarantineReasonUnmappedStatus,
		Detail:      `unmapped status code "HOLDBACK"`,
		ArchiveKey:  "quarantine/naver/2026030112345.json",
		Status:      integration.QuarantineStatusOpen,
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newQuarantineIDContext(w *httptest.ResponseRecorder, method, path string, id string) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(method, path, nil)
	c.Params = gin.Params{{Key: "id", Value: id}}
	return c
}

func TestQuarantineHandler_List(t *testing.T) {
	handler, reviewer := setupQuarantineTestHandler()

	record := createTestQuarantineRecord()
	reviewer.On("List", mock.Anything, integration.QuarantineFilter{
		Marketplace: "naver",
		Status:      integration.QuarantineStatusOpen,
		Page:        1,
		PageSize:    20,
	}).Return([]integration.QuarantineRecord{*record}, int64(1), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/quarantine?marketplace=naver&status=open", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []QuarantineResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "UNMAPPED_STATUS", resp.Data[0].Reason)
	assert.True(t, resp.Data[0].Archived)
	reviewer.AssertExpectations(t)
}

func TestQuarantineHandler_List_InvalidReason(t *testing.T) {
	handler, reviewer := setupQuarantineTestHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/quarantine?reason=BORED", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	reviewer.AssertNotCalled(t, "List")
}

func TestQuarantineHandler_Get(t *testing.T) {
	handler, reviewer := setupQuarantineTestHandler()

	record := createTestQuarantineRecord()
	reviewer.On("Get", mock.Anything, record.ID).Return(record, nil)

	w := httptest.NewRecorder()
	c := newQuarantineIDContext(w, http.MethodGet, "/api/v1/quarantine/"+record.ID.String(), record.ID.String())

	handler.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2026030112345")
}

func TestQuarantineHandler_Payload(t *testing.T) {
	t.Run("raw payload", func(t *testing.T) {
		handler, reviewer := setupQuarantineTestHandler()
		id := uuid.New()
		reviewer.On("Payload", mock.Anything, id).Return([]byte(`{"productOrderId":"2026030112345"}`), nil)

		w := httptest.NewRecorder()
		c := newQuarantineIDContext(w, http.MethodGet, "/api/v1/quarantine/"+id.String()+"/payload", id.String())

		handler.Payload(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"productOrderId":"2026030112345"}`, w.Body.String())
	})

	t.Run("no payload", func(t *testing.T) {
		handler, reviewer := setupQuarantineTestHandler()
		id := uuid.New()
		reviewer.On("Payload", mock.Anything, id).Return([]byte(nil), nil)

		w := httptest.NewRecorder()
		c := newQuarantineIDContext(w, http.MethodGet, "/api/v1/quarantine/"+id.String()+"/payload", id.String())

		handler.Payload(c)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestQuarantineHandler_Resolve(t *testing.T) {
	t.Run("resolved by operator", func(t *testing.T) {
		handler, reviewer := setupQuarantineTestHandler()

		record := createTestQuarantineRecord()
		resolvedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		resolved := *record
		resolved.Status = integration.QuarantineStatusResolved
		resolved.ResolvedBy = "ops@example.com"
		resolved.ResolvedAt = &resolvedAt
		reviewer.On("Resolve", mock.Anything, record.ID, "ops@example.com").Return(&resolved, nil)

		w := httptest.NewRecorder()
		c := newQuarantineIDContext(w, http.MethodPost, "/api/v1/quarantine/"+record.ID.String()+"/resolve", record.ID.String())
		setOperator(c, "ops@example.com")

		handler.Resolve(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data QuarantineResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "resolved", resp.Data.Status)
		assert.Equal(t, "ops@example.com", resp.Data.ResolvedBy)
		reviewer.AssertExpectations(t)
	})

	t.Run("already resolved", func(t *testing.T) {
		handler, reviewer := setupQuarantineTestHandler()
		id := uuid.New()
		reviewer.On("Resolve", mock.Anything, id, "ops@example.com").Return(nil, integration.ErrQuarantineResolved)

		w := httptest.NewRecorder()
		c := newQuarantineIDContext(w, http.MethodPost, "/api/v1/quarantine/"+id.String()+"/resolve", id.String())
		setOperator(c, "ops@example.com")

		handler.Resolve(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		handler, reviewer := setupQuarantineTestHandler()
		id := uuid.New()

		w := httptest.NewRecorder()
		c := newQuarantineIDContext(w, http.MethodPost, "/api/v1/quarantine/"+id.String()+"/resolve", id.String())

		handler.Resolve(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		reviewer.AssertNotCalled(t, "Resolve")
	})
}
