package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeConflict    = "CONFLICT"
	ErrCodeActor       = "ACTOR_ERROR"
	ErrCodeTimeout     = "TIMEOUT_ERROR"
	ErrCodeStore       = "STORE_ERROR"
	ErrCodeSession     = "SESSION_ERROR"
	ErrCodeTermination = "TERMINATION_ERROR"
	ErrCodeTool        = "TOOL_ERROR"
	ErrCodeExecution   = "EXECUTION_ERROR"
)

// ClaimError is the structured error type for all claimflow operations.
type ClaimError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	CaseID  string         `json:"case_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ClaimError) Error() string {
	if e.CaseID != "" {
		return fmt.Sprintf("[%s] case %s: %s", e.Code, e.CaseID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ClaimError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ClaimError.
func NewError(code, message string) *ClaimError {
	return &ClaimError{Code: code, Message: message}
}

// NewErrorf creates a new ClaimError with a formatted message.
func NewErrorf(code, format string, args ...any) *ClaimError {
	return &ClaimError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCase attaches a case ID to the error.
func (e *ClaimError) WithCase(caseID string) *ClaimError {
	e.CaseID = caseID
	return e
}

// WithCause attaches an underlying cause.
func (e *ClaimError) WithCause(err error) *ClaimError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ClaimError) WithDetails(details map[string]any) *ClaimError {
	e.Details = details
	return e
}

// IsNotFound reports whether err is a ClaimError with code NOT_FOUND.
func IsNotFound(err error) bool {
	ce, ok := err.(*ClaimError)
	return ok && ce.Code == ErrCodeNotFound
}

// IsConflict reports whether err is a ClaimError with code CONFLICT.
func IsConflict(err error) bool {
	ce, ok := err.(*ClaimError)
	return ok && ce.Code == ErrCodeConflict
}
