package api

import (
	"encoding/json"
	"net/http"

	"github.com/netwrench/netwrench/internal/errors"
)

// ErrorCode represents standard API error codes.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates malformed or invalid request data.
	ErrCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrCodeValidationFailed indicates the change request failed validation.
	ErrCodeValidationFailed ErrorCode = "validation_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeLocked indicates an apply is already in flight for the interface.
	ErrCodeLocked ErrorCode = "locked"

	// ErrCodeRollbackFailed indicates a restore attempt failed; the system may
	// be in an inconsistent state.
	ErrCodeRollbackFailed ErrorCode = "rollback_failed"

	// ErrCodeInternalError indicates an internal server error.
	ErrCodeInternalError ErrorCode = "internal_error"
)

// APIError represents a structured API error response.
type APIError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps an APIError for JSON responses.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	WriteJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

// WriteErrorDetails writes an error envelope with details.
func WriteErrorDetails(w http.ResponseWriter, status int, code ErrorCode, message string, details map[string]interface{}) {
	WriteJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message, Details: details}})
}

// WriteInvalidRequest writes a 400 Bad Request error.
func WriteInvalidRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

// WriteInternalError writes a 500 Internal Server Error.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// WriteDomainError maps a domain error to an HTTP status and envelope.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.ErrCodeUnknownParameter, errors.ErrCodeTypeMismatch,
		errors.ErrCodeOutOfPolicy, errors.ErrCodeUnknownInterface:
		WriteError(w, http.StatusUnprocessableEntity, ErrCodeValidationFailed, err.Error())
	case errors.ErrCodeLocked:
		WriteError(w, http.StatusConflict, ErrCodeLocked, err.Error())
	case errors.ErrCodeRollbackFailed:
		WriteError(w, http.StatusInternalServerError, ErrCodeRollbackFailed, err.Error())
	default:
		WriteInternalError(w, err.Error())
	}
}
