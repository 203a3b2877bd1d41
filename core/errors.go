package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Planning errors
	ErrPlanRejected = errors.New("plan rejected by validator")
	ErrPlanEmpty    = errors.New("plan is empty")
	ErrUnknownTool  = errors.New("tool not present in registry")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Operation errors
	ErrTimeout            = errors.New("operation timeout")
	ErrContextCanceled    = errors.New("context canceled")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// HTTP/Network errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")

	// Pipeline errors
	ErrPipelineHalted = errors.New("pipeline halted")
)

// BrainError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type BrainError struct {
	Op      string // Operation that failed (e.g., "planner.Plan")
	Kind    string // Error kind (e.g., "planner", "executor", "config")
	ID      string // Optional ID of the entity involved (step id, request id)
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *BrainError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("%s error", e.Kind)
	}
	if e.Op == "" {
		return msg
	}
	if e.ID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.ID, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *BrainError) Unwrap() error {
	return e.Err
}

// NewBrainError creates a new BrainError
func NewBrainError(op, kind string, err error) *BrainError {
	return &BrainError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable.
// Retryable errors are typically transient network or availability issues.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRequestFailed)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsPlanningError checks if an error came from plan construction or validation
func IsPlanningError(err error) bool {
	return errors.Is(err, ErrPlanRejected) ||
		errors.Is(err, ErrPlanEmpty) ||
		errors.Is(err, ErrUnknownTool)
}
