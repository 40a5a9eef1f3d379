// Package errors provides domain-specific error types for netwrench.
//
// This package defines structured errors with error codes, making it easier to handle
// and test the different failure modes of the validate/render/apply pipeline
// consistently across the application.
package errors

import "fmt"

// ErrorCode represents a category of error that can occur in the application.
type ErrorCode string

const (
	// ErrCodeUnknownParameter indicates a parameter key absent from the policy catalog.
	ErrCodeUnknownParameter ErrorCode = "UNKNOWN_PARAMETER"

	// ErrCodeTypeMismatch indicates a value that cannot be coerced to its declared type.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeOutOfPolicy indicates a value outside its declared range or allowed set.
	ErrCodeOutOfPolicy ErrorCode = "OUT_OF_POLICY"

	// ErrCodeUnknownInterface indicates a target interface that does not exist.
	ErrCodeUnknownInterface ErrorCode = "UNKNOWN_INTERFACE"

	// ErrCodePlanInvariant indicates a structurally incomplete plan reached the
	// renderer. This is an internal bug, never caused by valid caller input.
	ErrCodePlanInvariant ErrorCode = "PLAN_INVARIANT"

	// ErrCodeCommandNotAllowed indicates a binary missing from the executor allowlist.
	ErrCodeCommandNotAllowed ErrorCode = "COMMAND_NOT_ALLOWED"

	// ErrCodeTimeout indicates a command exceeded its execution timeout and was killed.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeNonZeroExit indicates a command exited with a non-zero status.
	ErrCodeNonZeroExit ErrorCode = "NON_ZERO_EXIT"

	// ErrCodeSnapshotFailed indicates prior state could not be captured; the
	// apply aborts before any mutation.
	ErrCodeSnapshotFailed ErrorCode = "SNAPSHOT_FAILED"

	// ErrCodeRollbackFailed indicates a restore error after a failed apply; the
	// system may be in neither the old nor the new state.
	ErrCodeRollbackFailed ErrorCode = "ROLLBACK_FAILED"

	// ErrCodeLocked indicates another apply already holds the interface lock.
	ErrCodeLocked ErrorCode = "INTERFACE_LOCKED"

	// ErrCodeConfig indicates a configuration-related error.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeCatalog indicates an error loading or querying the policy catalog.
	ErrCodeCatalog ErrorCode = "CATALOG_ERROR"

	// ErrCodeStorage indicates a checkpoint store error.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"

	// ErrCodeNotFound indicates a referenced record (e.g. checkpoint id) does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error represents a domain-specific error with an error code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new domain error with the specified code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new domain error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the error code carried by err, or ErrCodeInternal if err is
// not a domain error.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrCodeInternal
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(ErrCodeConfig, message, cause)
}

// NewCatalogError creates a new policy catalog error.
func NewCatalogError(message string, cause error) *Error {
	return Wrap(ErrCodeCatalog, message, cause)
}

// NewCommandNotAllowedError creates a new allowlist rejection error.
func NewCommandNotAllowedError(binary string) *Error {
	return Newf(ErrCodeCommandNotAllowed, "command not allowed: %s", binary)
}

// NewTimeoutError creates a new command timeout error.
func NewTimeoutError(message string, cause error) *Error {
	return Wrap(ErrCodeTimeout, message, cause)
}

// NewSnapshotError creates a new snapshot failure error.
func NewSnapshotError(message string, cause error) *Error {
	return Wrap(ErrCodeSnapshotFailed, message, cause)
}

// NewRollbackError creates a new rollback failure error.
func NewRollbackError(message string, cause error) *Error {
	return Wrap(ErrCodeRollbackFailed, message, cause)
}

// NewStorageError creates a new checkpoint store error.
func NewStorageError(message string, cause error) *Error {
	return Wrap(ErrCodeStorage, message, cause)
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCodeInternal, message, cause)
}
