// Package errors provides the structured error type used across stonesite.
//
// Every failure that crosses a package boundary is a *SiteError carrying a
// category, a stable code and an optional cause. The contact workflow only
// ever produces one user-visible kind, the send failure, but configuration,
// validation and security problems are classified the same way so that the
// HTTP layer and the CLI can decide how to report them.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeSend       ErrorType = "send"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeSendFailed        = "ERR_SEND_FAILED"
	ErrCodeSubmitInFlight    = "ERR_SUBMIT_IN_FLIGHT"
	ErrCodeUnknownField      = "ERR_UNKNOWN_FIELD"
	ErrCodeImageNotFound     = "ERR_IMAGE_NOT_FOUND"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeMissingCredential = "ERR_MISSING_CREDENTIAL"
	ErrCodeInvalidOrigin     = "ERR_INVALID_ORIGIN"
	ErrCodePathTraversal     = "ERR_PATH_TRAVERSAL"
	ErrCodeRateLimited       = "ERR_RATE_LIMITED"
	ErrCodeSessionLimit      = "ERR_SESSION_LIMIT"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError     = "ERR_INTERNAL"
	ErrCodeValidationFailed  = "ERR_VALIDATION_FAILED"
)

// SiteError is a structured error type with context.
type SiteError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SiteError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *SiteError) Is(target error) bool {
	var t *SiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SiteError) WithContext(key string, value interface{}) *SiteError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *SiteError) WithComponent(component string) *SiteError {
	e.Component = component

	return e
}

// NewSendFailure wraps any error returned by the remote email service. The
// cause is kept for diagnostics only; visitors never see it.
func NewSendFailure(cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeSend,
		Code:        ErrCodeSendFailed,
		Message:     "failed to send message",
		Cause:       cause,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeSecurity,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsSendFailure reports whether err is, or wraps, a send failure.
func IsSendFailure(err error) bool {
	return isType(err, ErrorTypeSend)
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	return isType(err, ErrorTypeSecurity)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return isType(err, ErrorTypeConfig)
}

func isType(err error, t ErrorType) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Type == t
	}

	return false
}

// Logger is the subset of logging.Logger the handler needs.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler provides centralized error logging.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level chosen by its category.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var se *SiteError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch se.Type {
	case ErrorTypeSecurity:
		h.logger.Error(ctx, se, "Security error occurred",
			"type", se.Type,
			"code", se.Code,
			"component", se.Component)
	case ErrorTypeValidation, ErrorTypeSend:
		h.logger.Warn(ctx, se, "Request could not be completed",
			"type", se.Type,
			"code", se.Code,
			"component", se.Component)
	default:
		h.logger.Error(ctx, se, "Error occurred",
			"type", se.Type,
			"code", se.Code,
			"component", se.Component)
	}
}
