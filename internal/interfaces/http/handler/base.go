package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
	"github.com/marketsync/backend/internal/interfaces/http/middleware"
)

// APIResponse documents the success envelope with a typed data field.
// @Description Standard API response wrapper
type APIResponse[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Meta    *dto.Meta `json:"meta,omitempty"`
}

// ErrorResponse documents the error envelope.
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// BaseHandler writes the response envelopes shared by every handler.
type BaseHandler struct{}

func getOperator(c *gin.Context) (string, error) {
	subject := middleware.Subject(c)
	if subject == "" {
		return "", errors.New("operator not found in context")
	}
	return subject, nil
}

func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
	c.Writer.WriteHeaderNow()
}

// Error writes an error envelope with an explicit status.
func (h *BaseHandler) Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode writes an error envelope, taking the status from code.
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// BindError reports a failed ShouldBind call. Validator failures get field
// details; malformed bodies or queries get a plain bad request.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		middleware.HandleValidationError(c, err)
		return
	}
	h.BadRequest(c, err.Error())
}

// HandleError maps domain and sync engine errors onto the API codes. Anything
// unrecognised is a 500 and its message is not exposed.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.ErrorWithCode(c, dto.FromDomainCode(domainErr.Code), domainErr.Message)
		return
	}
	if code, message, ok := integrationErrorCode(err); ok {
		h.ErrorWithCode(c, code, message)
		return
	}
	_ = c.Error(err)
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

func integrationErrorCode(err error) (string, string, bool) {
	switch {
	case errors.Is(err, integration.ErrOrderNotFound):
		return dto.ErrCodeNotFound, "Order not found", true
	case errors.Is(err, integration.ErrSKUNotFound):
		return dto.ErrCodeNotFound, "SKU not found", true
	case errors.Is(err, integration.ErrRunNotFound):
		return dto.ErrCodeNotFound, "Sync run not found", true
	case errors.Is(err, integration.ErrQuarantineNotFound):
		return dto.ErrCodeNotFound, "Quarantine record not found", true
	case errors.Is(err, integration.ErrMarketplaceNotRegistered):
		return dto.ErrCodeUnknownMarketplace, "Marketplace is not registered", true
	case errors.Is(err, integration.ErrInvalidMarketplace):
		return dto.ErrCodeInvalidInput, "Invalid marketplace id", true
	case errors.Is(err, integration.ErrInvalidRunKind):
		return dto.ErrCodeInvalidInput, "Invalid run kind", true
	case errors.Is(err, integration.ErrInvalidStatus):
		return dto.ErrCodeInvalidInput, "Invalid order status", true
	case errors.Is(err, integration.ErrQuarantineResolved):
		return dto.ErrCodeInvalidState, "Quarantine record is already resolved", true
	case errors.Is(err, scheduler.ErrOrchestratorStopped):
		return dto.ErrCodeServiceUnavailable, "Sync orchestrator is shutting down", true
	case errors.Is(err, scheduler.ErrExecutorNotRegistered):
		return dto.ErrCodeInvalidInput, "Run kind is not enabled", true
	}

	switch integration.Classify(err) {
	case integration.ErrorClassConfiguration:
		return dto.ErrCodeMarketplaceBlocked, err.Error(), true
	case integration.ErrorClassConflict:
		return dto.ErrCodeConcurrencyConflict, "Concurrent update, please retry", true
	}
	return "", "", false
}
