// Package errors provides the error codes surfaced by the Kuapa offline core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure the caller can branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Storage errors. Adapter failures are reported with these codes but never returned
	// to store callers.
	ErrStorage        ErrorCode = "STORAGE_ERROR"
	ErrMigration      ErrorCode = "MIGRATION_FAILED"
	ErrCorruptedState ErrorCode = "CORRUPTED_STATE"

	// Detection errors
	ErrDetectionFailed  ErrorCode = "DETECTION_FAILED"
	ErrDetectionInvalid ErrorCode = "DETECTION_INVALID_RESULT"

	// Image pipeline errors
	ErrImageDecode ErrorCode = "IMAGE_DECODE_FAILED"
	ErrImageEncode ErrorCode = "IMAGE_ENCODE_FAILED"

	// Sync errors
	ErrSyncFailed ErrorCode = "SYNC_FAILED"
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

// Is reports whether any error in err's chain is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the code of the outermost AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
