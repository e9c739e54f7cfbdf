package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
)

// Error is the structured error type for docindex.
// Every failure the engine surfaces to callers is one of these, so that the
// CLI, the MCP server and logs can classify it by code.
type Error struct {
	// Code is the unique error code (e.g., "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
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
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, so errors.Is(err, &Error{Code: ...}) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a ConfigurationError. Never retryable.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *Error {
	return New(ErrCodeIO, message, cause)
}

// TransientProviderError creates a ProviderError that the retry loop may repeat.
func TransientProviderError(message string, cause error) *Error {
	return New(ErrCodeProviderTransient, message, cause)
}

// PermanentProviderError creates a ProviderError that must not be retried.
func PermanentProviderError(message string, cause error) *Error {
	return New(ErrCodeProviderPermanent, message, cause)
}

// DimensionMismatch reports a vector whose length disagrees with the index.
func DimensionMismatch(expected, got int) *Error {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", strconv.Itoa(expected)).
		WithDetail("got", strconv.Itoa(got))
}

// ProviderMismatch reports two incompatible provider identities.
func ProviderMismatch(message string) *Error {
	return New(ErrCodeProviderMismatch, message, nil).
		WithSuggestion("re-index with a single embedding provider and model")
}

// FormatError reports an unsupported or malformed index header.
func FormatError(message string, cause error) *Error {
	return New(ErrCodeIndexFormat, message, cause).WithSuggestion(SuggestRebuild)
}

// CorruptionError reports record data that could not be fully parsed.
func CorruptionError(message string, cause error) *Error {
	return New(ErrCodeIndexCorrupt, message, cause).WithSuggestion(SuggestRebuild)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// IsCode reports whether err's chain contains an Error with the given code.
func IsCode(err error, code string) bool {
	return stderrors.Is(err, &Error{Code: code})
}

// IsTransient reports whether err is a transient ProviderError.
func IsTransient(err error) bool {
	return IsCode(err, ErrCodeProviderTransient)
}

// IsPermanent reports whether err is a permanent ProviderError.
func IsPermanent(err error) bool {
	return IsCode(err, ErrCodeProviderPermanent)
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code. Returns empty string if err carries none.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
