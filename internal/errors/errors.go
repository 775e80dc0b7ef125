package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeIO         ErrorType = "IO"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeMalformed  ErrorType = "MALFORMED_RECORD"
	ErrorTypeValidation ErrorType = "VALIDATION"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Type, so callers can compare against
// the sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == "" && t.Cause == nil
}

var (
	ErrIO         = &Error{Type: ErrorTypeIO}
	ErrNotFound   = &Error{Type: ErrorTypeNotFound}
	ErrMalformed  = &Error{Type: ErrorTypeMalformed}
	ErrValidation = &Error{Type: ErrorTypeValidation}
)

func IOError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Message: message,
		Cause:   cause,
	}
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

func MalformedRecord(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeMalformed,
		Message: message,
		Cause:   cause,
	}
}

func ValidationError(message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

func IsIO(err error) bool {
	return stderrors.Is(err, ErrIO)
}

func IsMalformed(err error) bool {
	return stderrors.Is(err, ErrMalformed)
}

func IsValidation(err error) bool {
	return stderrors.Is(err, ErrValidation)
}
