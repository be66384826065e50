package integration

// ---------------------------------------------------------------------------
// CanonicalStatus is the unified internal order state
// ---------------------------------------------------------------------------

// CanonicalStatus is the unified internal order state
type CanonicalStatus string

const (
	StatusPendingPayment    CanonicalStatus = "PENDING_PAYMENT"
	StatusPaid              CanonicalStatus = "PAID"
	StatusPreparing         CanonicalStatus = "PREPARING"
	StatusOnHold            CanonicalStatus = "ON_HOLD"
	StatusShipping          CanonicalStatus = "SHIPPING"
	StatusDelivered         CanonicalStatus = "DELIVERED"
	StatusConfirmed         CanonicalStatus = "CONFIRMED"
	StatusCancelRequested   CanonicalStatus = "CANCEL_REQUESTED"
	StatusCancelled         CanonicalStatus = "CANCELLED"
	StatusReturnRequested   CanonicalStatus = "RETURN_REQUESTED"
	StatusReturned          CanonicalStatus = "RETURNED"
	StatusExchangeRequested CanonicalStatus = "EXCHANGE_REQUESTED"
	StatusExchanged         CanonicalStatus = "EXCHANGED"
	StatusRefundRequested   CanonicalStatus = "REFUND_REQUESTED"
	StatusRefunded          CanonicalStatus = "REFUNDED"
)

// AllCanonicalStatuses lists every canonical status in lifecycle order
var AllCanonicalStatuses = []CanonicalStatus{
	StatusPendingPayment, StatusPaid, StatusPreparing, StatusOnHold, StatusShipping,
	StatusDelivered, StatusConfirmed, StatusCancelRequested, StatusCancelled,
	StatusReturnRequested, StatusReturned, StatusExchangeRequested, StatusExchanged,
	StatusRefundRequested, StatusRefunded,
}

// IsValid returns true if the status is one of the canonical set
func (s CanonicalStatus) IsValid() bool {
	for _, c := range AllCanonicalStatuses {
		if c == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true once no further fulfilment is expected
func (s CanonicalStatus) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusReturned, StatusExchanged, StatusRefunded:
		return true
	default:
		return false
	}
}

// String returns the string representation of CanonicalStatus
func (s CanonicalStatus) String() string {
	return string(s)
}

// TransitionSource records who moved an order to a status
type TransitionSource string

const (
	TransitionSourceInternal     TransitionSource = "internal"
	TransitionSourceExternalSync TransitionSource = "external-sync"
)
