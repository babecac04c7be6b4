// Package errors defines the application error taxonomy shared by the queue, the
// batch executor, the stores and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a job or record was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data or state.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates a structurally invalid submission.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeForeignKey indicates a record references a job that does not exist.
	ErrCodeForeignKey ErrorCode = "foreign_key"
	// ErrCodeInternal indicates an unexpected error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a deadline was exceeded.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeNoValidInputs indicates a batch had no runnable models or an unusable dataset.
	ErrCodeNoValidInputs ErrorCode = "no_valid_inputs"
	// ErrCodeEvaluationFailure indicates one evaluation call failed.
	ErrCodeEvaluationFailure ErrorCode = "evaluation_failure"
	// ErrCodePersistence indicates the job store was unavailable or rejected a write.
	ErrCodePersistence ErrorCode = "persistence"
	// ErrCodeSchedulerInternal indicates an unexpected failure inside the worker loop.
	ErrCodeSchedulerInternal ErrorCode = "scheduler_internal"
)

// AppError is a structured error with a code, message and optional cause.
// It supports errors.Is and errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input for validation errors.
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return newf(ErrCodeNotFound, message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError { return newf(ErrCodeNotFound, format, args...) }

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return newf(ErrCodeConflict, message) }

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError { return newf(ErrCodeConflict, format, args...) }

// ConflictField creates a new Conflict error naming the duplicated field.
func ConflictField(field, message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message, Field: field}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError { return newf(ErrCodeValidation, message) }

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError { return newf(ErrCodeInternal, message) }

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError { return newf(ErrCodeInternal, format, args...) }

// NoValidInputs creates a NoValidInputs error.
func NoValidInputs(message string) *AppError { return newf(ErrCodeNoValidInputs, message) }

// EvaluationFailure wraps an evaluation error for one model.
func EvaluationFailure(modelRef string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeEvaluationFailure,
		Message: fmt.Sprintf("evaluate %s", modelRef),
		Cause:   cause,
	}
}

// Persistence wraps a store failure.
func Persistence(cause error, message string) *AppError {
	return &AppError{Code: ErrCodePersistence, Message: message, Cause: cause}
}

// SchedulerInternal creates an InternalSchedulerError.
func SchedulerInternal(cause error, message string) *AppError {
	return &AppError{Code: ErrCodeSchedulerInternal, Message: message, Cause: cause}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsForeignKey checks if an error is a ForeignKey error.
func IsForeignKey(err error) bool { return isCode(err, ErrCodeForeignKey) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// IsNoValidInputs checks if an error is a NoValidInputs error.
func IsNoValidInputs(err error) bool { return isCode(err, ErrCodeNoValidInputs) }

// IsEvaluationFailure checks if an error is an EvaluationFailure error.
func IsEvaluationFailure(err error) bool { return isCode(err, ErrCodeEvaluationFailure) }

// IsPersistence checks if an error is a Persistence error.
func IsPersistence(err error) bool { return isCode(err, ErrCodePersistence) }

// IsSchedulerInternal checks if an error is an InternalSchedulerError.
func IsSchedulerInternal(err error) bool { return isCode(err, ErrCodeSchedulerInternal) }

// GetCode returns the outermost ErrorCode, or empty string if err is not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of the outermost AppError, if any.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
