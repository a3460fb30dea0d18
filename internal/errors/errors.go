package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a category of session error.
type ErrorCode string

const (
	// ErrCodeCredentialsAbsent indicates neither identity cookie was present.
	ErrCodeCredentialsAbsent ErrorCode = "credentials_absent"
	// ErrCodeCredentialsInvalid indicates the access cookie was presented and rejected upstream.
	ErrCodeCredentialsInvalid ErrorCode = "credentials_invalid"
	// ErrCodeRefreshFailed indicates the refresh endpoint rejected the refresh cookie,
	// or the post-refresh validation did not authenticate.
	ErrCodeRefreshFailed ErrorCode = "refresh_failed"
	// ErrCodeTransient indicates an upstream call failed at the transport level, timed out,
	// or the provider answered with a server error.
	ErrCodeTransient ErrorCode = "transient"
	// ErrCodeUnauthenticated indicates a client-side request was rejected after the single retry.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeUpstream indicates an unexpected non-auth upstream response.
	ErrCodeUpstream ErrorCode = "upstream"
	// ErrCodeValidation indicates invalid input or configuration.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
)

// Reasons reported on a not-authenticated session outcome.
const (
	ReasonMissingCredentials = "missing credentials"
	ReasonAccessInvalid      = "access credential invalid"
	ReasonAuthFailed         = "authentication failed"
	ReasonTransient          = "failed to authenticate"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Status is the HTTP status that produced the error, when one exists.
	Status int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// CredentialsAbsent reports that no identity cookie was available. Terminal, zero network calls.
func CredentialsAbsent() *AppError {
	return &AppError{Code: ErrCodeCredentialsAbsent, Message: ReasonMissingCredentials}
}

// CredentialsInvalid reports that the access cookie was rejected by the provider.
func CredentialsInvalid() *AppError {
	return &AppError{Code: ErrCodeCredentialsInvalid, Message: ReasonAccessInvalid}
}

// RefreshFailed reports that the refresh attempt did not yield an authenticated session.
func RefreshFailed(cause error) *AppError {
	return &AppError{Code: ErrCodeRefreshFailed, Message: ReasonAuthFailed, Cause: cause}
}

// Transient reports a network-level or provider-side failure.
func Transient(cause error) *AppError {
	return &AppError{Code: ErrCodeTransient, Message: ReasonTransient, Cause: cause}
}

// Unauthenticated reports that a client request was still rejected after its single retry.
func Unauthenticated(status int) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthenticated,
		Message: "request not authenticated",
		Status:  status,
	}
}

// Upstream reports an unexpected upstream status.
func Upstream(status int, endpoint string) *AppError {
	return &AppError{
		Code:    ErrCodeUpstream,
		Message: fmt.Sprintf("%s returned %d %s", endpoint, status, http.StatusText(status)),
		Status:  status,
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsUnauthenticated checks if an error is a client-side Unauthenticated error.
func IsUnauthenticated(err error) bool {
	return IsCode(err, ErrCodeUnauthenticated)
}

// IsTransient checks if an error is a Transient error.
func IsTransient(err error) bool {
	return IsCode(err, ErrCodeTransient)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetStatus returns the HTTP status carried by an AppError, or 0.
func GetStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
