package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
)

type mockOrderReader struct {
	mock.Mock
}

func (m *mockOrderReader) List(ctx context.Context, filter integration.OrderFilter) ([]integration.Order, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]integration.Order), args.Get(1).(int64), args.Error(2)
}

func (m *mockOrderReader) Get(ctx context.Context, id uuid.UUID) (*integration.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Order), args.Error(1)
}

func (m *mockOrderReader) Transition(ctx context.Context, id uuid.UUID, status integration.CanonicalStatus) (*integration.Order, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Order), args.Error(1)
}

var orderTestNow = time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)

func setupOrderTestHandler() (*OrderHandler, *mockOrderReader) {
	gin.SetMode(gin.TestMode)
	orders := new(mockOrderReader)
	handler := NewOrderHandler(orders, nil)
	handler.now = func() time.Time { return orderTestNow }
	return handler, orders
}

func createTestOrder(status integration.CanonicalStatus) *integration.Order {
	orderedAt := orderTestNow.Add(-2 * time.Hour)
	return &integration.Order{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{ID: uuid.New(), CreatedAt: orderedAt, UpdatedAt: orderedAt},
			Version:    1,
		},
		Marketplace: "naver",
		BuyerRef:    "buyer-1",
		ShopCode:    "shop-a",
		TotalAmount: decimal.NewFromInt(59800),
		OrderedAt:   orderedAt,
		Status:      status,
		Items: []integration.LineItem{
			{ExternalSKU: "NV-1001", ProductName: "무선 이어폰", Quantity: 2, UnitPrice: decimal.NewFromInt(29900)},
		},
		History: []integration.StatusTransition{
			{To: status, Source: integration.TransitionSourceExternalSync, ExternalCode: "PAYED", At: orderedAt},
		},
	}
}

func TestOrderHandler_List_DefaultWindow(t *testing.T) {
	handler, orders := setupOrderTestHandler()

	since := orderTestNow.AddDate(0, 0, -DefaultOrderLookbackDays)
	orders.On("List", mock.Anything, integration.OrderFilter{
		Since:    &since,
		Page:     1,
		PageSize: 20,
	}).Return([]integration.Order{*createTestOrder(integration.StatusPaid)}, int64(1), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/orders", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []OrderResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "PAID", resp.Data[0].Status)
	assert.Equal(t, "결제완료", resp.Data[0].Badge.Label)
	assert.Equal(t, "59800", resp.Data[0].TotalAmount)
	assert.Equal(t, "59800", resp.Data[0].Items[0].Subtotal)
	assert.Empty(t, resp.Data[0].History, "list omits history")
	orders.AssertExpectations(t)
}

func TestOrderHandler_List_Filters(t *testing.T) {
	handler, orders := setupOrderTestHandler()

	since := orderTestNow.AddDate(0, 0, -30)
	orders.On("List", mock.Anything, integration.OrderFilter{
		Marketplace: "naver",
		ShopCode:    "shop-a",
		Statuses:    []integration.CanonicalStatus{integration.StatusPaid, integration.StatusPreparing},
		Since:       &since,
		Page:        2,
		PageSize:    50,
	}).Return([]integration.Order{}, int64(0), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet,
		"/api/v1/orders?marketplace=naver&shop_code=shop-a&status=paid,%20PREPARING&days=30&page=2&page_size=50", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	orders.AssertExpectations(t)
}

func TestOrderHandler_List_InvalidQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"unknown status", "status=PAID,SHIPPED_ISH"},
		{"days too large", "days=400"},
		{"page size too large", "page_size=500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, orders := setupOrderTestHandler()

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/orders?"+tt.query, nil)

			handler.List(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			orders.AssertNotCalled(t, "List")
		})
	}
}

func TestOrderHandler_Get(t *testing.T) {
	t.Run("includes history", func(t *testing.T) {
		handler, orders := setupOrderTestHandler()
		order := createTestOrder(integration.StatusPaid)
		orders.On("Get", mock.Anything, order.ID).Return(order, nil)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: order.ID.String()}}

		handler.Get(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data OrderResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data.History, 1)
		assert.Equal(t, "external-sync", resp.Data.History[0].Source)
		assert.Equal(t, "PAYED", resp.Data.History[0].ExternalCode)
	})

	t.Run("not found", func(t *testing.T) {
		handler, orders := setupOrderTestHandler()
		id := uuid.New()
		orders.On("Get", mock.Anything, id).Return(nil, integration.ErrOrderNotFound)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/orders/"+id.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: id.String()}}

		handler.Get(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOrderHandler_Transition(t *testing.T) {
	t.Run("normalizes status", func(t *testing.T) {
		handler, orders := setupOrderTestHandler()
		order := createTestOrder(integration.StatusPreparing)
		orders.On("Transition", mock.Anything, order.ID, integration.StatusPreparing).Return(order, nil)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodPatch, "/api/v1/orders/"+order.ID.String()+"/status",
			bytes.NewBufferString(`{"status":" preparing "}`))
		c.Request.Header.Set("Content-Type", "application/json")
		c.Params = gin.Params{{Key: "id", Value: order.ID.String()}}

		handler.Transition(c)

		assert.Equal(t, http.StatusOK, w.Code)
		orders.AssertExpectations(t)
	})

	t.Run("invalid status", func(t *testing.T) {
		handler, orders := setupOrderTestHandler()
		id := uuid.New()
		orders.On("Transition", mock.Anything, id, integration.CanonicalStatus("LOST")).Return(nil, integration.ErrInvalidStatus)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodPatch, "/api/v1/orders/"+id.String()+"/status",
			bytes.NewBufferString(`{"status":"lost"}`))
		c.Request.Header.Set("Content-Type", "application/json")
		c.Params = gin.Params{{Key: "id", Value: id.String()}}

		handler.Transition(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing body", func(t *testing.T) {
		handler, orders := setupOrderTestHandler()
		id := uuid.New()

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest(http.MethodPatch, "/api/v1/orders/"+id.String()+"/status",
			bytes.NewBufferString(`{}`))
		c.Request.Header.Set("Content-Type", "application/json")
		c.Params = gin.Params{{Key: "id", Value: id.String()}}

		handler.Transition(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		orders.AssertNotCalled(t, "Transition")
	})
}
