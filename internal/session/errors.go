// Package session validates session locations chosen at startup and reads
// the small amount of on-disk session data the startup sequence needs.
package session

// file: internal/session/errors.go

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrorCode classifies session validation failures.
type ErrorCode int

// Defined validation error codes.
const (
	ErrEmptyName ErrorCode = iota + 2000
	ErrIllegalCharacter
	ErrNoSuchSession
	ErrNotADirectory
	ErrStatefileMissing
	ErrStatefileUnreadable
	ErrArchiveFailed
	ErrStatFailed
	ErrCanceled
)

// ValidationError is returned alongside a non-Proceed verdict. Message is
// written for the user; Error() adds the code and cause for logs.
type ValidationError struct {
	// Code is the numeric error code.
	Code ErrorCode
	// Message is a human-readable error message.
	Message string
	// Cause is the underlying error, if any.
	Cause error
	// Context contains additional error context.
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	base := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if e.Cause != nil {
		base += fmt.Sprintf(": %v", e.Cause)
	}
	return base
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the validation error.
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewValidationError creates a new ValidationError.
func NewValidationError(code ErrorCode, message string, cause error) *ValidationError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &ValidationError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: map[string]interface{}{
			"timestamp": time.Now().UTC(),
		},
	}
}

// UserMessage extracts the text to show the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

// CodeOf returns the validation code carried by err, or 0.
func CodeOf(err error) ErrorCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return 0
}
