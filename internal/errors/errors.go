// Package errors provides error code definitions shared across the sync core.
package errors

import "fmt"

// ErrorCode represents a stable, machine-readable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase   ErrorCode = "DATABASE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Queue errors
	ErrQueueStore        ErrorCode = "QUEUE_STORE_ERROR"
	ErrMutationNotFound  ErrorCode = "MUTATION_NOT_FOUND"
	ErrHandlerUnresolved ErrorCode = "HANDLER_UNRESOLVED"
	ErrDeadLettered      ErrorCode = "MUTATION_DEAD_LETTERED"

	// Sync errors
	ErrSyncFailed  ErrorCode = "SYNC_FAILED"
	ErrSyncOffline ErrorCode = "SYNC_OFFLINE"
	ErrSyncBusy    ErrorCode = "SYNC_IN_PROGRESS"
	ErrApplyFailed ErrorCode = "APPLY_FAILED"

	// Photo errors
	ErrPhotoNotFound  ErrorCode = "PHOTO_NOT_FOUND"
	ErrPhotoInvalid   ErrorCode = "PHOTO_INVALID"
	ErrUploadFailed   ErrorCode = "UPLOAD_FAILED"
	ErrIntakeRejected ErrorCode = "INTAKE_REJECTED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
