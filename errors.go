package websub

import (
	"errors"
	"fmt"
)

// Error represents a hub error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
// This lets errors.Is match a wrapped error against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes for hub operations.
const (
	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeNotFound indicates the requested subscription does not exist.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeStore indicates a subscription store operation failed.
	ErrCodeStore = "STORE_ERROR"

	// ErrCodeQueue indicates a job queue operation failed.
	ErrCodeQueue = "QUEUE_ERROR"

	// ErrCodeDelivery indicates callback delivery failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeContractViolation indicates a queued job does not satisfy its payload contract.
	ErrCodeContractViolation = "CONTRACT_VIOLATION"
)

// Common errors.
var (
	// ErrContractViolation matches (via errors.Is) every error raised for a
	// malformed notification or outbox job.
	ErrContractViolation = &Error{
		Code:    ErrCodeContractViolation,
		Message: "job violates payload contract",
	}

	// ErrNotFound is returned when a subscription to remove does not exist.
	ErrNotFound = &Error{
		Code:    ErrCodeNotFound,
		Message: "subscription not found",
	}

	// ErrInvalidConfiguration is returned when an engine is built with invalid options.
	ErrInvalidConfiguration = &Error{
		Code:    ErrCodeConfiguration,
		Message: "invalid engine configuration",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNotFound checks if an error reports a missing subscription.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error reports invalid input.
func IsValidation(err error) bool {
	var hubErr *Error
	if errors.As(err, &hubErr) {
		return hubErr.Code == ErrCodeValidation
	}
	return false
}

func contractViolation(message string, cause error) *Error {
	return NewErrorWithCause(ErrCodeContractViolation, message, cause)
}

// IsDelivery checks if an error reports a failed callback attempt.
func IsDelivery(err error) bool {
	var hubErr *Error
	if errors.As(err, &hubErr) {
		return hubErr.Code == ErrCodeDelivery
	}
	return false
}
