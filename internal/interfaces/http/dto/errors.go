package dto

import (
	"net/http"

	"github.com/marketsync/backend/internal/domain/shared"
)

// API error codes. Every error envelope carries one of these.
const (
	ErrCodeInternal = "ERR_INTERNAL"

	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeRateLimited  = "ERR_RATE_LIMITED"

	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeInsufficientStock   = "ERR_INSUFFICIENT_STOCK"

	// ErrCodeMarketplaceBlocked means the marketplace has an unresolved
	// configuration problem and will not sync until an operator fixes it.
	ErrCodeMarketplaceBlocked = "ERR_MARKETPLACE_BLOCKED"
	ErrCodeUnknownMarketplace = "ERR_UNKNOWN_MARKETPLACE"
	// ErrCodeServiceUnavailable is returned while the orchestrator shuts down.
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

var httpStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeRateLimited:  http.StatusTooManyRequests,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeInsufficientStock:   http.StatusUnprocessableEntity,

	ErrCodeMarketplaceBlocked: http.StatusUnprocessableEntity,
	ErrCodeUnknownMarketplace: http.StatusNotFound,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the status for code, or 500 for unknown codes.
func GetHTTPStatus(code string) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodes maps shared.DomainError codes to API codes.
var domainCodes = map[string]string{
	shared.CodeNotFound:            ErrCodeNotFound,
	shared.CodeInvalidInput:        ErrCodeInvalidInput,
	shared.CodeInvalidQuantity:     ErrCodeInvalidInput,
	shared.CodeInvalidStatus:       ErrCodeInvalidInput,
	shared.CodeInvalidState:        ErrCodeInvalidState,
	shared.CodeConcurrencyConflict: ErrCodeConcurrencyConflict,
	shared.CodeInsufficientStock:   ErrCodeInsufficientStock,
}

// FromDomainCode translates a domain error code. Codes without a mapping
// are returned unchanged.
func FromDomainCode(code string) string {
	if apiCode, ok := domainCodes[code]; ok {
		return apiCode
	}
	return code
}
