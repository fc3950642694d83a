package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an error
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"

	// Versioning errors
	ErrorTypeEncoding          ErrorType = "ENCODING_ERROR"
	ErrorTypeAddressExhausted  ErrorType = "ADDRESS_EXHAUSTED"
	ErrorTypePatchConflict     ErrorType = "PATCH_CONFLICT"
	ErrorTypeChainGap          ErrorType = "CHAIN_GAP"
	ErrorTypeChainBroken       ErrorType = "CHAIN_BROKEN"
	ErrorTypeDimensionMismatch ErrorType = "DIMENSION_MISMATCH"

	// Application errors
	ErrorTypeInternal ErrorType = "INTERNAL"
	ErrorTypeTimeout  ErrorType = "TIMEOUT"

	// Infrastructure errors
	ErrorTypeDatabase ErrorType = "DATABASE"
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single error detail
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Constructor functions for common error types

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewEncodingError reports input that has no canonical byte representation
func NewEncodingError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeEncoding,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewAddressExhaustedError reports an unresolved coordinate-space collision
// after the bounded retry budget. Practically unreachable at 128 bits.
func NewAddressExhaustedError(attempts int) *AppError {
	return &AppError{
		Type:       ErrorTypeAddressExhausted,
		Message:    fmt.Sprintf("coordinate address space exhausted after %d attempts", attempts),
		HTTPStatus: http.StatusConflict,
	}
}

// NewPatchConflictError reports a delta operation whose referenced path or
// test expectation does not match the state it is applied to.
func NewPatchConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypePatchConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewChainGapError reports a missing delta in a required replay sequence
func NewChainGapError(coordinate string, position int) *AppError {
	return &AppError{
		Type:       ErrorTypeChainGap,
		Message:    fmt.Sprintf("missing delta at position %d for coordinate %s", position, coordinate),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewChainBrokenError reports a Merkle verification mismatch at a position
func NewChainBrokenError(coordinate string, position int) *AppError {
	return &AppError{
		Type:       ErrorTypeChainBroken,
		Message:    fmt.Sprintf("chain broken at position %d for coordinate %s", position, coordinate),
		HTTPStatus: http.StatusConflict,
	}
}

// NewDimensionMismatchError reports an embedding vector of the wrong length
func NewDimensionMismatchError(expected, actual int) *AppError {
	return &AppError{
		Type:       ErrorTypeDimensionMismatch,
		Message:    fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, actual),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation '%s' timed out", operation),
		HTTPStatus: http.StatusRequestTimeout,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDatabase,
		Message:    fmt.Sprintf("database operation '%s' failed", operation),
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewExternalError creates an external service error
func NewExternalError(service string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Message:    fmt.Sprintf("external service '%s' error", service),
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsPatchConflict checks if an error is a patch conflict
func IsPatchConflict(err error) bool {
	return IsType(err, ErrorTypePatchConflict)
}

// IsChainGap checks if an error is a chain gap
func IsChainGap(err error) bool {
	return IsType(err, ErrorTypeChainGap)
}

// IsEncoding checks if an error is an encoding error
func IsEncoding(err error) bool {
	return IsType(err, ErrorTypeEncoding)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, add context to message
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	// Otherwise create a new internal error
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
