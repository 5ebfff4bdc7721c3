package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Callers branch with errors.Is.
var (
	ErrNotFound                = errors.New("not found")
	ErrNoSymptomData           = errors.New("no symptom data")
	ErrInvalidComparison       = errors.New("invalid comparison input")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrDuplicateCode           = errors.New("duplicate assessment code")

	// Recovered inside the scoring engine and only ever logged.
	ErrMissingCatalogEntry   = errors.New("missing catalog entry")
	ErrMalformedCatalogField = errors.New("malformed catalog field")
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeNoSymptomData     = "NO_SYMPTOM_DATA"
	CodeInvalidComparison = "INVALID_COMPARISON"
	CodeInvalidStatus     = "INVALID_STATUS"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeRateLimit         = "RATE_LIMIT_EXCEEDED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternalServer    = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ComparisonError carries the user-facing reason a comparison request was rejected.
type ComparisonError struct {
	Reason string
}

func (e *ComparisonError) Error() string { return e.Reason }

// Unwrap makes ComparisonError match ErrInvalidComparison.
func (e *ComparisonError) Unwrap() error { return ErrInvalidComparison }

// CodeForError maps an error to its APIError code.
func CodeForError(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return CodeInvalidInput
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNoSymptomData):
		return CodeNoSymptomData
	case errors.Is(err, ErrInvalidComparison):
		return CodeInvalidComparison
	case errors.Is(err, ErrInvalidStatusTransition):
		return CodeInvalidStatus
	default:
		return CodeInternalServer
	}
}
