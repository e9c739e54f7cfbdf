// Package errors defines the coded errors docindex surfaces to users.
//
// Codes read ERR_<number>_<NAME>; the first digit is the category:
// 1 config, 2 IO and index files, 3 embedding provider, 4 validation,
// 5 internal.
package errors

// Category groups codes by their first digit.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk and index format errors.
	CategoryIO Category = "IO"
	// CategoryProvider indicates embedding backend errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input and invariant violations.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity tells the CLI how loudly to report.
type Severity string

const (
	// SeverityFatal: the index or config cannot be used at all.
	SeverityFatal Severity = "FATAL"
	// SeverityError: this operation failed.
	SeverityError Severity = "ERROR"
	// SeverityWarning: retryable, may succeed later.
	SeverityWarning Severity = "WARNING"
)

const (
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigNotFound = "ERR_102_CONFIG_NOT_FOUND"

	ErrCodeIO           = "ERR_201_IO"
	ErrCodeFileNotFound = "ERR_202_FILE_NOT_FOUND"
	ErrCodeIndexFormat  = "ERR_205_INDEX_FORMAT"
	ErrCodeIndexCorrupt = "ERR_206_INDEX_CORRUPT"

	ErrCodeProviderTransient = "ERR_301_PROVIDER_TRANSIENT"
	ErrCodeProviderPermanent = "ERR_302_PROVIDER_PERMANENT"

	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeProviderMismatch  = "ERR_403_PROVIDER_MISMATCH"

	ErrCodeInternal = "ERR_501_INTERNAL"
)

// SuggestRebuild is attached to persistence errors.
const SuggestRebuild = "index unreadable, rebuild required"

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// A broken index is fatal; transient provider failures are warnings.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorrupt, ErrCodeIndexFormat:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	return code == ErrCodeProviderTransient
}
