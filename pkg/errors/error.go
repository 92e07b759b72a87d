// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid parameters, configuration, orders
//   - Tick and feed errors (200-299): Bad ticks, malformed feed messages, disconnects
//   - Bar series errors (300-399): Out-of-order bars, unknown instruments
//   - Indicator errors (400-499): Insufficient history, calculation errors
//   - Trading errors (500-599): Order dispatch, position/account/price queries
//   - Bar log errors (600-699): Persisted bar log failures
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidTick, "price must be positive")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeOutOfOrderBar, "bar at %s is not after %s", t1, t0)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeFeedDisconnected, "stream read failed", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeFeedDisconnected) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// InsufficientDataError represents an error when the bar series does not yet
// hold enough history for an indicator's minimum period.
type InsufficientDataError struct {
	Required   int    // Minimum bars required
	Actual     int    // Actual bars available
	Instrument string // Optional: instrument context
	Message    string // Human-readable message
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(required, actual int, instrument, message string) *InsufficientDataError {
	return &InsufficientDataError{
		Required:   required,
		Actual:     actual,
		Instrument: instrument,
		Message:    message,
	}
}

// NewInsufficientDataErrorf creates a new InsufficientDataError with a formatted message.
func NewInsufficientDataErrorf(required, actual int, instrument, format string, args ...any) *InsufficientDataError {
	return &InsufficientDataError{
		Required:   required,
		Actual:     actual,
		Instrument: instrument,
		Message:    fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return e.Message
}

// IsInsufficientDataError checks if an error is an InsufficientDataError.
// It uses errors.As to check the error chain.
func IsInsufficientDataError(err error) bool {
	var insufficientErr *InsufficientDataError

	return errors.As(err, &insufficientErr)
}
