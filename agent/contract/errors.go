package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")
	ErrRouting         = errors.New("no specialist could be selected")
	ErrSynthesis       = errors.New("synthesis failed")
	ErrRunTimeout      = errors.New("run deadline exceeded")
)
