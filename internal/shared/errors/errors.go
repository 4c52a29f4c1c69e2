package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application error with additional context
type AppError struct {
	Code      string         // Error code for client
	Message   string         // Human-readable message
	Err       error          // Underlying error
	Retryable bool           // Whether the service boundary may retry the operation
	Details   map[string]any // Context for the caller (current vs requested state/amount)
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value pair of caller-facing context.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Common error codes
const (
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeForbidden               = "FORBIDDEN"
	ErrCodeConflict                = "CONFLICT"
	ErrCodeStateConflict           = "STATE_CONFLICT"
	ErrCodeInternal                = "INTERNAL_ERROR"
	ErrCodeDatabaseError           = "DATABASE_ERROR"
	ErrCodeDependency              = "DEPENDENCY_ERROR"
	ErrCodeInsufficientBalance     = "INSUFFICIENT_BALANCE"
	ErrCodeMinimumBalanceViolation = "MINIMUM_BALANCE_VIOLATION"
	ErrCodeLedgerUnbalanced        = "LEDGER_UNBALANCED"
	ErrCodeInvalidTransition       = "INVALID_TRANSITION"
)

// Kind groups codes into the categories callers branch on.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindState          Kind = "state"
	KindInfrastructure Kind = "infrastructure"
)

var kindByCode = map[string]Kind{
	ErrCodeValidation:              KindValidation,
	ErrCodeLedgerUnbalanced:        KindValidation,
	ErrCodeForbidden:               KindValidation,
	ErrCodeNotFound:                KindNotFound,
	ErrCodeConflict:                KindState,
	ErrCodeStateConflict:           KindState,
	ErrCodeInsufficientBalance:     KindState,
	ErrCodeMinimumBalanceViolation: KindState,
	ErrCodeInvalidTransition:       KindState,
	ErrCodeInternal:                KindInfrastructure,
	ErrCodeDatabaseError:           KindInfrastructure,
	ErrCodeDependency:              KindInfrastructure,
}

// KindOf returns the category of err, or KindInfrastructure for errors that
// carry no AppError.
func KindOf(err error) Kind {
	if appErr := GetAppError(err); appErr != nil {
		if kind, ok := kindByCode[appErr.Code]; ok {
			return kind
		}
	}
	return KindInfrastructure
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation creates a validation error
func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Err:     err,
	}
}

// NotFound creates a not found error
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: message,
		Err:     err,
	}
}

// Conflict creates a conflict error
func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
		Err:     err,
	}
}

// State creates a state error: the request is well-formed but the entity is
// not in a state that allows it.
func State(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeStateConflict,
		Message: message,
		Err:     err,
	}
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// DatabaseError creates a database error. retryable is set by the caller that
// knows the driver error code.
func DatabaseError(message string, err error, retryable bool) *AppError {
	return &AppError{
		Code:      ErrCodeDatabaseError,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// Dependency creates an error for an unavailable collaborator (cache, broker).
func Dependency(message string, err error) *AppError {
	return &AppError{
		Code:      ErrCodeDependency,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// InsufficientBalance creates an insufficient balance error
func InsufficientBalance(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInsufficientBalance,
		Message: message,
		Err:     err,
	}
}

// MinimumBalanceViolation creates a minimum balance violation error
func MinimumBalanceViolation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeMinimumBalanceViolation,
		Message: message,
		Err:     err,
	}
}

// LedgerUnbalanced creates a ledger unbalanced error
func LedgerUnbalanced(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeLedgerUnbalanced,
		Message: message,
		Err:     err,
	}
}

// InvalidTransition creates a workflow transition error
func InvalidTransition(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidTransition,
		Message: message,
		Err:     err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts an AppError from an error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsRetryable reports whether any AppError in the chain is marked retryable.
func IsRetryable(err error) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Retryable {
			return true
		}
		err = appErr.Err
	}
	return false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}
