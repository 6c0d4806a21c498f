// Package errors defines the structured error taxonomy of the publishing
// pipeline. Missing inputs are not represented here at all: components skip
// them with a warning. Everything that does become an error is fatal to the
// current run.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// External tool errors (modifyrepo_c, gpg)
	ErrCodeExternalTool ErrorCode = "EXTERNAL_TOOL"

	// Remote signing service errors
	ErrCodeSignService ErrorCode = "SIGN_SERVICE"

	// Manifest errors
	ErrCodeManifestParse ErrorCode = "MANIFEST_PARSE"
	ErrCodeManifestWrite ErrorCode = "MANIFEST_WRITE"

	// Filesystem layout errors
	ErrCodeLayoutConflict ErrorCode = "LAYOUT_CONFLICT"
	ErrCodeFilesystem     ErrorCode = "FILESYSTEM"

	// Promotion errors
	ErrCodePromotion ErrorCode = "PROMOTION"

	// Generic errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a structured pipeline error
type Error struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Context    map[string]any
}

// New creates a new structured error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap wraps an existing error with pipeline error context
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
	}
}

// WithContext adds context key-value pairs to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, v))
			first = false
		}
		sb.WriteString("}")
	}

	if e.Underlying != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Underlying))
	}

	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Underlying
}

// CodeOf extracts the structured code from err, or ErrCodeInternal when err
// carries none.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given structured code.
func HasCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
