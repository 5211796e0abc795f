// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Extraction errors.
	ErrNoTransactions = errors.New("no transactions extracted")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConfigError indicates a provider or platform is not configured for the
// attempted path. It is fatal to that path but may trigger fallback.
type ConfigError struct {
	Err    error
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UnavailableError indicates no adapter can serve the request right now,
// for example offline with no local capability, or a forced cloud-only
// mode with no cloud provider. The message is suitable for direct display.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("unavailable: %s", e.Reason)
}

// TimeoutError indicates an extraction call exceeded its budget.
type TimeoutError struct {
	Err       error
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ExtractionError indicates a malformed provider response, such as
// invalid JSON. Callers recover by substituting a default low-confidence
// result rather than aborting the batch.
type ExtractionError struct {
	Err       error
	Provider  string
	Retryable bool
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %v", e.Provider, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PersistenceError indicates the durable store is unreachable or a write
// was rejected.
type PersistenceError struct {
	Err       error
	Operation string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Retryable
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
