package core

import "fmt"

// Standard error codes used in scheduler error responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeValidationError = "validation_error"
	ErrCodeNotFound        = "not_found"
	ErrCodeInvalidState    = "invalid_state"
	ErrCodeConflict        = "conflict"
	ErrCodeConfigError     = "config_error"
	ErrCodeInternalError   = "internal_error"
)

// RetryError represents a structured scheduler error.
type RetryError struct {
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func NewInvalidRequestError(message string, details map[string]any) *RetryError {
	return &RetryError{
		Code:      ErrCodeInvalidRequest,
		Message:   message,
		Retryable: false,
		Details:   details,
	}
}

func NewValidationError(message string, details map[string]any) *RetryError {
	return &RetryError{
		Code:      ErrCodeValidationError,
		Message:   message,
		Retryable: false,
		Details:   details,
	}
}

func NewNotFoundError(resourceType, resourceID string) *RetryError {
	return &RetryError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s '%s' not found.", resourceType, resourceID),
		Retryable: false,
		Details: map[string]any{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		},
	}
}

// NewInvalidStateError reports an operation attempted against an item in
// a status that does not permit it (e.g. manual retry of a processing
// item).
func NewInvalidStateError(itemID, status string) *RetryError {
	return &RetryError{
		Code:      ErrCodeInvalidState,
		Message:   fmt.Sprintf("item '%s' is in status '%s' and cannot be retried.", itemID, status),
		Retryable: false,
		Details: map[string]any{
			"item_id": itemID,
			"status":  status,
		},
	}
}

// NewConflictError reports a lost compare-and-swap: the item's status
// changed between read and write, typically because another scheduler
// run claimed or settled it first.
func NewConflictError(message string, details map[string]any) *RetryError {
	return &RetryError{
		Code:      ErrCodeConflict,
		Message:   message,
		Retryable: true,
		Details:   details,
	}
}

func NewConfigError(message string, details map[string]any) *RetryError {
	return &RetryError{
		Code:      ErrCodeConfigError,
		Message:   message,
		Retryable: false,
		Details:   details,
	}
}

func NewInternalError(message string) *RetryError {
	return &RetryError{
		Code:      ErrCodeInternalError,
		Message:   message,
		Retryable: true,
	}
}

// IsCode reports whether err is a RetryError with the given code.
func IsCode(err error, code string) bool {
	re, ok := err.(*RetryError)
	return ok && re.Code == code
}
