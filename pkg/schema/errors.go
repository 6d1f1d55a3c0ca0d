package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeCycleDetected    = "CYCLE_DETECTED"
	ErrCodeUnknownBlockType = "UNKNOWN_BLOCK_TYPE"
	ErrCodeMalformedField   = "MALFORMED_FIELD"
	ErrCodeInvalidGraph     = "INVALID_GRAPH"
	ErrCodeStore            = "STORE_ERROR"
)

// BlockflowError is the structured error type for all blockflow operations.
type BlockflowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Label   string         `json:"label,omitempty"`
	Cause   error          `json:"-"`
}

func (e *BlockflowError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("[%s] block %s: %s", e.Code, e.Label, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BlockflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BlockflowError.
func NewError(code, message string) *BlockflowError {
	return &BlockflowError{Code: code, Message: message}
}

// NewErrorf creates a new BlockflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *BlockflowError {
	return &BlockflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithLabel attaches the offending block label to the error.
func (e *BlockflowError) WithLabel(label string) *BlockflowError {
	e.Label = label
	return e
}

// WithCause attaches an underlying cause.
func (e *BlockflowError) WithCause(err error) *BlockflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BlockflowError) WithDetails(details map[string]any) *BlockflowError {
	e.Details = details
	return e
}

// IsCode reports whether err is a *BlockflowError carrying the given code.
func IsCode(err error, code string) bool {
	for err != nil {
		if be, ok := err.(*BlockflowError); ok && be.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
