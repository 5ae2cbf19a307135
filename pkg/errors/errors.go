package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNilLocal indicates that no local collection was provided
	ErrNilLocal = errors.New("local collection is required")

	// ErrInvalidLocal indicates that the local collection is not a document or a slice of documents
	ErrInvalidLocal = errors.New("local collection must be a document or a slice of documents")

	// ErrInvalidSource indicates that the fetched source collection is not a document or a slice of documents
	ErrInvalidSource = errors.New("source collection must be a document or a slice of documents")

	// ErrNilFetch indicates that no fetch function was provided
	ErrNilFetch = errors.New("fetch function is required")

	// ErrEmptyField indicates that a field path is empty or blank
	ErrEmptyField = errors.New("field path must be a non-empty string")

	// ErrConflictingAs indicates that both as and asMap were provided
	ErrConflictingAs = errors.New("as and asMap are mutually exclusive")

	// ErrEngineNotFound indicates that a named engine was not registered
	ErrEngineNotFound = errors.New("engine not found in registry")

	// ErrScriptFailed indicates that a value-generation script could not run
	ErrScriptFailed = errors.New("script execution failed")
)

// Error codes used by structured SDK errors
const (
	CodeValidation = "VALIDATION"
	CodeSource     = "SOURCE"
	CodeScript     = "SCRIPT"
)

// Error represents a structured SDK error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new SDK error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidation checks if an error originated from field or parameter validation
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeValidation
	}
	return false
}

// IsScript checks if an error originated from a value-generation script
func IsScript(err error) bool {
	if errors.Is(err, ErrScriptFailed) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeScript
	}
	return false
}
