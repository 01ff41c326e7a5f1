package domain

import (
	"errors"
	"fmt"
)

// Error kinds used across the pipeline. Queries wrap these with context via
// fmt.Errorf("...: %w", ...) so callers can branch with errors.Is.
var (
	// ErrInvalidCorpus marks malformed or missing guideline files at load.
	ErrInvalidCorpus = errors.New("invalid guideline corpus")

	// ErrNotFound marks lookups where the caller must distinguish absence
	// from emptiness.
	ErrNotFound = errors.New("not found")

	// ErrUnknownInfection means infection_type has no matching protocol.
	ErrUnknownInfection = fmt.Errorf("unknown infection: %w", ErrNotFound)

	// ErrUnknownDrug means a selected drug id has no monograph. Should be
	// impossible once cross-reference validation passes, but still handled.
	ErrUnknownDrug = fmt.Errorf("unknown drug: %w", ErrNotFound)

	// ErrMissingDoseEntry means the drug exists but has no dose for the
	// indication even after normalization and substring fallback.
	ErrMissingDoseEntry = fmt.Errorf("no dose entry: %w", ErrNotFound)

	// ErrNoRegimen means the infection matched but no regimen survives
	// allergy and pregnancy filtering.
	ErrNoRegimen = errors.New("no regimen available")

	// ErrInvalidInput marks a missing or unparseable required field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExternalSearch marks evidence coordinator failures; always
	// non-fatal, the pre-search confidence is kept.
	ErrExternalSearch = errors.New("external evidence search failed")
)

// ValidationError reports a single bad input field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}
