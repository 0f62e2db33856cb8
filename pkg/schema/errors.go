package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeConversion        = "CONVERSION_ERROR"
	ErrCodeUnsupported       = "UNSUPPORTED_CONFIGURATION"
	ErrCodeFaulted           = "FAULTED"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeStore             = "STORE_ERROR"
)

// WaypointError is the structured error type for all engine operations.
type WaypointError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	ActivityID string         `json:"activity_id,omitempty"`
	Cause      error          `json:"-"`
}

func (e *WaypointError) Error() string {
	if e.ActivityID != "" {
		return fmt.Sprintf("[%s] activity %s: %s", e.Code, e.ActivityID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *WaypointError) Unwrap() error {
	return e.Cause
}

// NewError creates a new WaypointError.
func NewError(code, message string) *WaypointError {
	return &WaypointError{Code: code, Message: message}
}

// NewErrorf creates a new WaypointError with a formatted message.
func NewErrorf(code, format string, args ...any) *WaypointError {
	return &WaypointError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithActivity attaches an activity ID to the error.
func (e *WaypointError) WithActivity(activityID string) *WaypointError {
	e.ActivityID = activityID
	return e
}

// WithCause attaches an underlying cause.
func (e *WaypointError) WithCause(err error) *WaypointError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *WaypointError) WithDetails(details map[string]any) *WaypointError {
	e.Details = details
	return e
}

// IsCode reports whether any WaypointError in err's chain carries the given code.
func IsCode(err error, code string) bool {
	var we *WaypointError
	for err != nil {
		if !errors.As(err, &we) {
			return false
		}
		if we.Code == code {
			return true
		}
		err = we.Cause
	}
	return false
}
