package errors

import "fmt"

// ErrorCode identifies an error category on the wire; it is what a client
// receives inside an `error` event.
type ErrorCode string

const (
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeTargetUnavailable  ErrorCode = "TARGET_UNAVAILABLE"
	ErrCodeInvalidLocation    ErrorCode = "INVALID_LOCATION"
	ErrCodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// AppError is an application error carrying a wire code and an optional
// cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error.
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// WrapError attaches a cause to a new application error.
func WrapError(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

func NewNotAuthenticatedError() *AppError {
	return NewAppError(ErrCodeNotAuthenticated, "user not authenticated")
}

func NewTargetUnavailableError(target string) *AppError {
	return NewAppError(ErrCodeTargetUnavailable, fmt.Sprintf("target user %s not found or not connected", target))
}

func NewInvalidLocationError() *AppError {
	return NewAppError(ErrCodeInvalidLocation, "invalid location data")
}

func NewPersistenceFailureError(err error) *AppError {
	return WrapError(err, ErrCodePersistenceFailure, "durable store operation failed")
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message)
}

// GetAppError extracts an AppError from an error chain, or nil.
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	type unwrapper interface {
		Unwrap() error
	}

	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}

	return nil
}
