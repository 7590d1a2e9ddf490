// Package errors defines the application error taxonomy shared by the report pipeline.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates a caller error such as an unknown report type or a malformed id.
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	// ErrCodeNotFound indicates a report was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., duplicate id).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeTransientUnavailable indicates the broker or cache could not be reached.
	ErrCodeTransientUnavailable ErrorCode = "transient_unavailable"
	// ErrCodeProcessingFailure indicates a delivery could not be processed; terminal for that message.
	ErrCodeProcessingFailure ErrorCode = "processing_failure"
	// ErrCodeConnectionExhausted indicates every broker connection attempt in a sequence failed.
	ErrCodeConnectionExhausted ErrorCode = "connection_exhausted"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for argument errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// InvalidArgument creates a new InvalidArgument error for a specific field.
func InvalidArgument(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidArgument,
		Message: message,
		Field:   field,
	}
}

// InvalidArgumentf creates a new InvalidArgument error with formatted message.
func InvalidArgumentf(field, format string, args ...any) *AppError {
	return InvalidArgument(field, fmt.Sprintf(format, args...))
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return NotFound(fmt.Sprintf(format, args...))
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
	}
}

// TransientUnavailable wraps a broker or cache failure that callers should treat as temporary.
func TransientUnavailable(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeTransientUnavailable,
		Message: message,
		Cause:   err,
	}
}

// ProcessingFailure wraps the reason a delivery could not be processed.
func ProcessingFailure(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeProcessingFailure,
		Message: message,
		Cause:   err,
	}
}

// ConnectionExhausted reports that attempts connection attempts all failed; cause is the last failure.
func ConnectionExhausted(attempts int, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeConnectionExhausted,
		Message: fmt.Sprintf("broker connection failed after %d attempts", attempts),
		Cause:   cause,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsInvalidArgument checks if an error is an InvalidArgument error.
func IsInvalidArgument(err error) bool {
	return isCode(err, ErrCodeInvalidArgument)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsTransientUnavailable checks if an error is a TransientUnavailable error.
func IsTransientUnavailable(err error) bool {
	return isCode(err, ErrCodeTransientUnavailable)
}

// IsProcessingFailure checks if an error is a ProcessingFailure error.
func IsProcessingFailure(err error) bool {
	return isCode(err, ErrCodeProcessingFailure)
}

// IsConnectionExhausted checks if an error is a ConnectionExhausted error.
func IsConnectionExhausted(err error) bool {
	return isCode(err, ErrCodeConnectionExhausted)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
