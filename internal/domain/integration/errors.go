package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrMarketplaceNotRegistered = errors.New("integration: marketplace not registered")
	ErrMarketplaceBlocked       = errors.New("integration: marketplace blocked by configuration error")
	ErrInvalidMarketplace       = errors.New("integration: invalid marketplace id")
	ErrInvalidRunKind           = errors.New("integration: invalid run kind")

	ErrTokenNotFound = errors.New("integration: access token not found")
	ErrTokenExpired  = errors.New("integration: access token expired")

	ErrSKUNotFound     = errors.New("integration: sku not found")
	ErrMappingNotFound = errors.New("integration: external mapping not found")
	ErrOrderNotFound   = errors.New("integration: order not found")
	ErrRunNotFound     = errors.New("integration: sync run not found")

	ErrUnmappedStatus         = errors.New("integration: unmapped external status code")
	ErrMalformedPayload       = errors.New("integration: malformed external payload")
	ErrTerminalLineItemChange = errors.New("integration: line items changed after terminal status")
	ErrInvalidStatus          = errors.New("integration: invalid canonical status")
	ErrRunClosed              = errors.New("integration: sync run already closed")
	ErrIteratorDone           = errors.New("integration: no more pages")
	ErrQuarantineNotFound     = errors.New("integration: quarantine record not found")
	ErrQuarantineResolved     = errors.New("integration: quarantine record already resolved")
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorClass tells the orchestrator how to react to an error
type ErrorClass string

const (
	ErrorClassNone          ErrorClass = ""
	ErrorClassAuth          ErrorClass = "auth"
	ErrorClassTransient     ErrorClass = "transient"
	ErrorClassValidation    ErrorClass = "validation"
	ErrorClassConflict      ErrorClass = "conflict"
	ErrorClassConfiguration ErrorClass = "configuration"
	ErrorClassPermanent     ErrorClass = "permanent"
	ErrorClassCancelled     ErrorClass = "cancelled"
)

// AuthError means the issuer rejected the credentials. It is never retried
// without a credential change.
type AuthError struct {
	Marketplace MarketplaceID
	Err         error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error for %s: %v", e.Marketplace, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientNetworkError covers rate limits, timeouts and upstream 5xx responses
type TransientNetworkError struct {
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient error during %s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// PermanentError is a request the marketplace will keep refusing (bad request, not found)
type PermanentError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error during %s (status %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// ValidationError quarantines a single record without failing the run
type ValidationError struct {
	Reason QuarantineReason
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError is a compare-and-set mismatch on a Product or Order write
type ConflictError struct {
	Entity string
	ID     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting concurrent write on %s %s", e.Entity, e.ID)
}

// ConfigurationError blocks a marketplace entirely until the configuration is fixed
type ConfigurationError struct {
	Marketplace MarketplaceID
	Problems    []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %v", e.Marketplace, e.Problems)
}

// NewValidationError builds a ValidationError wrapping the matching sentinel
func NewValidationError(reason QuarantineReason, detail string) *ValidationError {
	var sentinel error
	switch reason {
	case QuarantineReasonUnmappedStatus:
		sentinel = ErrUnmappedStatus
	case QuarantineReasonTerminalLineItemChange:
		sentinel = ErrTerminalLineItemChange
	default:
		sentinel = ErrMalformedPayload
	}
	return &ValidationError{Reason: reason, Detail: detail, Err: sentinel}
}

// Classify maps an error onto the taxonomy
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassNone
	}

	var (
		authErr      *AuthError
		transientErr *TransientNetworkError
		validErr     *ValidationError
		conflictErr  *ConflictError
		configErr    *ConfigurationError
		netErr       net.Error
	)

	switch {
	case errors.As(err, &authErr):
		return ErrorClassAuth
	case errors.As(err, &configErr), errors.Is(err, ErrMarketplaceBlocked):
		return ErrorClassConfiguration
	case errors.As(err, &validErr):
		return ErrorClassValidation
	case errors.As(err, &conflictErr):
		return ErrorClassConflict
	case errors.As(err, &transientErr):
		return ErrorClassTransient
	case errors.Is(err, context.Canceled):
		return ErrorClassCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTransient
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorClassTransient
	default:
		return ErrorClassPermanent
	}
}

// IsRetryable reports whether the orchestrator may retry the run automatically
func IsRetryable(err error) bool {
	return Classify(err) == ErrorClassTransient
}

// RetryAfterHint returns the upstream Retry-After value carried by a transient error
func RetryAfterHint(err error) time.Duration {
	var transientErr *TransientNetworkError
	if errors.As(err, &transientErr) {
		return transientErr.RetryAfter
	}
	return 0
}
