package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrProviderUnavailable indicates an external provider (completion,
	// embedding, web search) could not be reached after bounded retries
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrSchemaValidation indicates structured LLM output did not satisfy
	// the expected schema
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)
