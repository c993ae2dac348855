package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a SiteError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *SiteError {
	if err == nil {
		return nil
	}

	var se *SiteError
	if errors.As(err, &se) {
		return &SiteError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       se,
			Context:     se.Context,
			Component:   se.Component,
			Recoverable: se.Recoverable,
		}
	}

	return &SiteError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeSend,
	}
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *SiteError {
	se := Wrap(err, ErrorTypeConfig, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *SiteError {
	se := Wrap(err, ErrorTypeIO, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// WrapValidation wraps an error as a validation error
func WrapValidation(err error, code, message string) *SiteError {
	return Wrap(err, ErrorTypeValidation, code, message)
}

// GetErrorContext extracts context information from a SiteError
func GetErrorContext(err error) map[string]interface{} {
	var se *SiteError
	if errors.As(err, &se) {
		context := make(map[string]interface{})
		for k, v := range se.Context {
			context[k] = v
		}
		if se.Component != "" {
			context["component"] = se.Component
		}
		context["type"] = string(se.Type)
		context["code"] = se.Code
		context["recoverable"] = se.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// CombineErrors combines multiple errors into a single error with context
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	if len(nonNil) == 1 {
		return nonNil[0]
	}

	messages := make([]string, 0, len(nonNil))
	for _, err := range nonNil {
		messages = append(messages, err.Error())
	}

	return &SiteError{
		Type:    ErrorTypeConfig,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("multiple errors occurred: %d errors %v", len(nonNil), messages),
		Context: map[string]interface{}{
			"error_count": len(nonNil),
			"errors":      messages,
		},
		Recoverable: false,
	}
}
