package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Error wrapping preserves original error
func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection reset")

	// When: wrapping as a transient provider error
	err := TransientProviderError("embed request failed", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "config error",
			err:      ConfigError("dimension must be positive", nil),
			expected: "[ERR_101_CONFIG_INVALID] dimension must be positive",
		},
		{
			name:     "dimension mismatch",
			err:      DimensionMismatch(4, 3),
			expected: "[ERR_402_DIMENSION_MISMATCH] dimension mismatch: expected 4, got 3",
		},
		{
			name:     "with cause",
			err:      CorruptionError("truncated record", errors.New("unexpected EOF")),
			expected: "[ERR_206_INDEX_CORRUPT] truncated record: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code and different messages
	err1 := DimensionMismatch(4, 3)
	err2 := DimensionMismatch(8, 2)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, FormatError("bad magic", nil)))
}

func TestClassification_ThroughWrapping(t *testing.T) {
	// Given: provider errors wrapped by fmt.Errorf
	transient := fmt.Errorf("batch 3: %w", TransientProviderError("rate limited", nil))
	permanent := fmt.Errorf("batch 3: %w", PermanentProviderError("unauthorized", nil))

	// Then: classification sees through the wrapper
	assert.True(t, IsTransient(transient))
	assert.True(t, IsRetryable(transient))
	assert.False(t, IsPermanent(transient))

	assert.True(t, IsPermanent(permanent))
	assert.False(t, IsRetryable(permanent))
	assert.Equal(t, ErrCodeProviderPermanent, GetCode(permanent))
}

func TestCategoryAndSeverity_DerivedFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{ErrCodeIndexCorrupt, CategoryIO, SeverityFatal},
		{ErrCodeIndexFormat, CategoryIO, SeverityFatal},
		{ErrCodeProviderTransient, CategoryProvider, SeverityWarning},
		{ErrCodeProviderMismatch, CategoryValidation, SeverityError},
		{ErrCodeInternal, CategoryInternal, SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "x", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestPersistenceErrors_SuggestRebuild(t *testing.T) {
	assert.Equal(t, SuggestRebuild, FormatError("unsupported schema version 9", nil).Suggestion)
	assert.Equal(t, SuggestRebuild, CorruptionError("checksum mismatch", nil).Suggestion)
	assert.True(t, IsFatal(CorruptionError("checksum mismatch", nil)))
}

func TestFormatForCLI(t *testing.T) {
	// Given: a plain error
	out := FormatForCLI(errors.New("boom"))

	// Then: it is reported as internal
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)

	// Given: a structured error with a suggestion
	out = FormatForCLI(FormatError("bad magic", nil))
	assert.Contains(t, out, "Hint: "+SuggestRebuild)
	assert.Contains(t, out, "Code: "+ErrCodeIndexFormat)

	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	data, err := FormatJSON(DimensionMismatch(768, 384))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeDimensionMismatch, decoded["code"])
	assert.Equal(t, "VALIDATION", decoded["category"])
	details := decoded["details"].(map[string]any)
	assert.Equal(t, "768", details["expected"])
	assert.Equal(t, "384", details["got"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(TransientProviderError("timeout", errors.New("deadline exceeded")))
	assert.Contains(t, attrs, ErrCodeProviderTransient)
	assert.Contains(t, attrs, "deadline exceeded")
	assert.Nil(t, LogAttrs(nil))
}
