package errors

import (
	"errors"
	"fmt"
)

// LoupeError is the structured error type for Loupe.
// It provides rich context for error handling, logging, and user presentation.
type LoupeError struct {
	// Code is the unique error code (e.g., "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, External, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *LoupeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LoupeError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with LoupeError.
func (e *LoupeError) Is(target error) bool {
	if t, ok := target.(*LoupeError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *LoupeError) WithDetail(key, value string) *LoupeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *LoupeError) WithSuggestion(suggestion string) *LoupeError {
	e.Suggestion = suggestion
	return e
}

// New creates a new LoupeError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *LoupeError {
	return &LoupeError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a LoupeError from an existing error.
// The error's message becomes the LoupeError message.
func Wrap(code string, err error) *LoupeError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// QueryTooShort creates the validation error for queries under the minimum length.
func QueryTooShort(query string) *LoupeError {
	return New(ErrCodeQueryTooShort,
		fmt.Sprintf("query %q is too short: at least 2 characters required after trimming", query),
		nil).
		WithSuggestion("lengthen the query")
}

// DimensionMismatch creates the critical error for an embedding width that
// does not match the stored collection's width.
func DimensionMismatch(collection string, expected, got int) *LoupeError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("collection %q expects %d-dimensional embeddings, query embedding has %d dimensions", collection, expected, got),
		nil).
		WithDetail("collection", collection).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got)).
		WithSuggestion("the embedding model changed since the collection was built; rebuild the vector collections")
}

// VectorTimeout creates the non-fatal error for a vector path that exceeded
// its deadline.
func VectorTimeout(message string) *LoupeError {
	return New(ErrCodeVectorTimeout, message, nil).
		WithSuggestion("results were served from the lexical index only")
}

// IndexBuild creates the recoverable error for a failed lexical index build.
// The previous snapshot remains serviceable.
func IndexBuild(message string, cause error) *LoupeError {
	return New(ErrCodeIndexBuild, message, cause)
}

// StoreUnavailable creates the degradation error for an unreachable
// external store.
func StoreUnavailable(message string, cause error) *LoupeError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// HasCode reports whether err or any error it wraps is a LoupeError with
// the given code.
func HasCode(err error, code string) bool {
	var le *LoupeError
	if !errors.As(err, &le) {
		return false
	}
	if le.Code == code {
		return true
	}
	return HasCode(le.Cause, code)
}
