package contract

import "errors"

var (
	ErrModelInvoke         = errors.New("model invoke failed")
	ErrExtraction          = errors.New("no structured value could be extracted")
	ErrSchemaViolation     = errors.New("model response violates schema")
	ErrUpstreamDataMissing = errors.New("required upstream data is missing")
	ErrNotFound            = errors.New("record not found")
	ErrInvalidTransition   = errors.New("invalid experiment status transition")
)
