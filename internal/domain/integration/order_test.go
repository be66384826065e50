package integration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExternalOrder() *ExternalOrder {
	return &ExternalOrder{
		Marketplace:     "mock",
		ExternalOrderID: "ORD-100",
		StatusCode:      "PAY_DONE",
		BuyerRef:        "buyer-1",
		ShopCode:        "A077",
		TotalAmount:     decimal.NewFromInt(30000),
		OrderedAt:       time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
		ChangedAt:       time.Date(2026, 1, 2, 9, 5, 0, 0, time.UTC),
		Items: []LineItem{
			{ExternalSKU: "SKU-1", ProductName: "Pillow", Quantity: 2, UnitPrice: decimal.NewFromInt(15000)},
		},
	}
}

func TestNewOrderFromExternal(t *testing.T) {
	now := time.Now()
	order, err := NewOrderFromExternal(newTestExternalOrder(), StatusPaid, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, order.Status)
	require.Len(t, order.History, 1)
	assert.Equal(t, TransitionSourceExternalSync, order.History[0].Source)
	assert.Equal(t, "PAY_DONE", order.History[0].ExternalCode)
	assert.Equal(t, 1, order.Version)

	_, err = NewOrderFromExternal(newTestExternalOrder(), "BOGUS", now)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOrder_TransitionTo(t *testing.T) {
	order, _ := NewOrderFromExternal(newTestExternalOrder(), StatusPaid, time.Now())

	changed, err := order.TransitionTo(StatusPaid, TransitionSourceExternalSync, "PAY_DONE", time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, order.History, 1)

	changed, err = order.TransitionTo(StatusShipping, TransitionSourceInternal, "", time.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, order.History, 2)
	assert.Equal(t, StatusPaid, order.History[1].From)
	assert.Equal(t, StatusShipping, order.History[1].To)
	assert.Equal(t, TransitionSourceInternal, order.History[1].Source)
}

func TestOrder_ReplaceLineItems(t *testing.T) {
	order, _ := NewOrderFromExternal(newTestExternalOrder(), StatusPaid, time.Now())
	items := []LineItem{{ExternalSKU: "SKU-2", Quantity: 1, UnitPrice: decimal.NewFromInt(9000)}}

	require.NoError(t, order.ReplaceLineItems(items, decimal.NewFromInt(9000), time.Now()))
	assert.Equal(t, "SKU-2", order.Items[0].ExternalSKU)

	_, _ = order.TransitionTo(StatusCancelled, TransitionSourceExternalSync, "취소완료", time.Now())
	err := order.ReplaceLineItems(nil, decimal.Zero, time.Now())
	assert.ErrorIs(t, err, ErrTerminalLineItemChange)
}

func TestExternalOrder_Checksum(t *testing.T) {
	a := newTestExternalOrder()
	b := newTestExternalOrder()
	b.RawPayload = []byte(`{"noise":true}`)
	assert.Equal(t, a.Checksum(), b.Checksum(), "raw payload must not affect checksum")

	b.StatusCode = "SHIPPED"
	assert.NotEqual(t, a.Checksum(), b.Checksum())

	c := newTestExternalOrder()
	c.Items = append(c.Items, LineItem{ExternalSKU: "SKU-0", Quantity: 1, UnitPrice: decimal.NewFromInt(1)})
	d := newTestExternalOrder()
	d.Items = append([]LineItem{{ExternalSKU: "SKU-0", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}, d.Items...)
	assert.Equal(t, c.Checksum(), d.Checksum(), "item order must not affect checksum")
	assert.True(t, SameLineItems(c.Items, d.Items))
	assert.False(t, SameLineItems(a.Items, c.Items))
}

func TestExternalOrder_Validate(t *testing.T) {
	assert.NoError(t, newTestExternalOrder().Validate())

	bad := newTestExternalOrder()
	bad.ExternalOrderID = " "
	bad.Items[0].Quantity = -1
	err := bad.Validate()
	require.Error(t, err)
	assert.Equal(t, ErrorClassValidation, Classify(err))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestCanonicalStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   CanonicalStatus
		terminal bool
	}{
		{StatusPaid, false},
		{StatusShipping, false},
		{StatusCancelRequested, false},
		{StatusConfirmed, true},
		{StatusCancelled, true},
		{StatusRefunded, true},
		{StatusReturned, true},
		{StatusExchanged, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}
