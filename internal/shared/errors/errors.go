package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidTarget     = errors.New("invalid target")
	ErrUnroutable        = errors.New("unroutable complaint")
	ErrUnavailable       = errors.New("service unavailable")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// InvalidTransition reports a lifecycle precondition that does not hold,
// such as any action on a complaint in a terminal status.
func InvalidTransition(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransition,
		Message:    message,
		Code:       "INVALID_TRANSITION",
		HTTPStatus: http.StatusConflict,
		Details:    details,
	}
}

// InvalidTarget reports a bad assignment or transfer target.
func InvalidTarget(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrInvalidTarget,
		Message:    message,
		Code:       "INVALID_TARGET",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

// Unroutable reports that the classifier result matched no known category.
func Unroutable(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrUnroutable,
		Message:    message,
		Code:       "UNROUTABLE_COMPLAINT",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

// Unavailable reports a dependency that could not be reached.
func Unavailable(message string, err error) *AppError {
	cause := ErrUnavailable
	if err != nil {
		cause = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &AppError{
		Err:        cause,
		Message:    message,
		Code:       "SERVICE_UNAVAILABLE",
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrInternal, err),
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Err:        appErr.Err,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			Code:       appErr.Code,
			HTTPStatus: appErr.HTTPStatus,
			Details:    appErr.Details,
		}
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// As extracts an *AppError from err, falling back to an internal error.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// Is reports whether err matches target, re-exported so callers do not need
// to import both this package and the standard errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
