package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	// General errors
	ErrorCodeUnknown        ErrorCode = "UNKNOWN"
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"

	// Lock errors
	ErrorCodeAlreadyLocked ErrorCode = "ALREADY_LOCKED"
	ErrorCodeHolderBusy    ErrorCode = "HOLDER_BUSY"
	ErrorCodeLockRequired  ErrorCode = "LOCK_REQUIRED"

	// Record / edit errors
	ErrorCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	ErrorCodeEditNotFound   ErrorCode = "EDIT_NOT_FOUND"
	ErrorCodeNotInReview    ErrorCode = "NOT_IN_REVIEW"

	// Auth errors
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden    ErrorCode = "FORBIDDEN"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError processes an error and writes an appropriate HTTP response.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		h.WriteErrorResponse(w, http.StatusConflict, conflictCode(conflict.Reason), conflict.Message, requestID)
		return
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		h.WriteErrorResponse(w, http.StatusNotFound, notFoundCode(notFound.Reason), notFound.Message, requestID)
		return
	}

	var unauthorized *UnauthorizedError
	if errors.As(err, &unauthorized) {
		h.WriteErrorResponse(w, http.StatusUnauthorized, ErrorCodeUnauthorized, unauthorized.Message, requestID)
		return
	}

	h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, err.Error(), requestID)
}

// conflictCode maps a conflict reason to an application error code.
func conflictCode(reason string) ErrorCode {
	switch reason {
	case ReasonAlreadyLocked:
		return ErrorCodeAlreadyLocked
	case ReasonHolderBusy:
		return ErrorCodeHolderBusy
	case ReasonLockRequired:
		return ErrorCodeLockRequired
	default:
		return ErrorCodeInvalidRequest
	}
}

// notFoundCode maps a not-found reason to an application error code.
func notFoundCode(reason string) ErrorCode {
	switch reason {
	case ReasonNotInAvailable:
		return ErrorCodeRecordNotFound
	case ReasonEditNotFound:
		return ErrorCodeEditNotFound
	case ReasonNotInReview:
		return ErrorCodeNotInReview
	default:
		return ErrorCodeRecordNotFound
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteInternalError writes an internal error response.
func (h *Handler) WriteInternalError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, message, requestID)
}

// WriteUnauthorizedError writes an unauthorized response.
func (h *Handler) WriteUnauthorizedError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusUnauthorized, ErrorCodeUnauthorized, message, requestID)
}

// WriteForbiddenError writes a forbidden response.
func (h *Handler) WriteForbiddenError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusForbidden, ErrorCodeForbidden, message, requestID)
}
