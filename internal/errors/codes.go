// Package errors provides structured error handling for Loupe.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (source, cache)
//   - 3XX: External collaborator errors (vector store, embedder)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates source and cache I/O errors.
	CategoryIO Category = "IO"
	// CategoryExternal indicates errors from external collaborators.
	CategoryExternal Category = "EXTERNAL"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeSourceUnreadable = "ERR_201_SOURCE_UNREADABLE"
	ErrCodeCacheTooLarge    = "ERR_202_CACHE_TOO_LARGE"
	ErrCodeCacheCorrupt     = "ERR_203_CACHE_CORRUPT"

	// External collaborator errors (300-399)
	ErrCodeVectorTimeout       = "ERR_301_VECTOR_TIMEOUT"
	ErrCodeStoreUnavailable    = "ERR_302_STORE_UNAVAILABLE"
	ErrCodeEmbedderUnavailable = "ERR_303_EMBEDDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeQueryTooShort     = "ERR_401_QUERY_TOO_SHORT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeIndexBuild = "ERR_501_INDEX_BUILD"
	ErrCodeFusion     = "ERR_502_FUSION"
)

// categoryFromCode derives the error category from the code's number range.
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
		return CategoryExternal
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the default severity from the code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDimensionMismatch:
		// A mismatch means the stored collections were built with a
		// different embedding model and must be rebuilt.
		return SeverityFatal
	case ErrCodeVectorTimeout, ErrCodeStoreUnavailable, ErrCodeEmbedderUnavailable,
		ErrCodeCacheTooLarge, ErrCodeCacheCorrupt:
		return SeverityWarning
	case ErrCodeQueryTooShort:
		return SeverityInfo
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may
// succeed on retry without operator intervention.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeVectorTimeout, ErrCodeStoreUnavailable, ErrCodeEmbedderUnavailable:
		return true
	default:
		return false
	}
}
