package analyses

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDeleted           = errors.New("record deleted")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRetryNotAllowed   = errors.New("retry only allowed from error status")
	ErrStatusConflict    = errors.New("status changed concurrently")
)

const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeLLMTimeout        = "LLM_TIMEOUT"
	ErrorCodeLLMEmptyOutput    = "LLM_EMPTY_OUTPUT"
	ErrorCodeLLMSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
