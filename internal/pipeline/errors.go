package pipeline

import (
	"errors"
	"fmt"
)

// Reason classifies why a stage rejected a file.
type Reason string

const (
	// ReasonThresholdExceeded marks a file with a column whose
	// missing-value fraction broke the configured limit.
	ReasonThresholdExceeded Reason = "threshold_exceeded"
	// ReasonParse marks files that could not be read, parsed, or
	// written back.
	ReasonParse Reason = "parse_or_io"
	// ReasonTransform marks unexpected conditions while reshaping or
	// encrypting data, such as a column with no computable median.
	ReasonTransform Reason = "transform"
)

// StageError is the error type every stage returns. The stage boundary
// collapses whatever went wrong inside into one of the Reason values,
// so callers never handle excelize or crypto internals.
type StageError struct {
	Reason  Reason         `json:"reason"`
	Stage   string         `json:"stage"`
	File    string         `json:"file,omitempty"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("[%s] %s %s: %s", e.Reason, e.Stage, e.File, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Reason, e.Stage, e.Message)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewThresholdError reports a column whose missing fraction strictly
// exceeded the allowed threshold.
func NewThresholdError(stage, file, column string, fraction, threshold float64) *StageError {
	return &StageError{
		Reason:  ReasonThresholdExceeded,
		Stage:   stage,
		File:    file,
		Message: fmt.Sprintf("column %q is %.1f%% missing, limit is %.1f%%", column, fraction*100, threshold*100),
		Context: map[string]any{
			"column":    column,
			"fraction":  fraction,
			"threshold": threshold,
		},
	}
}

// NewParseError wraps a read, parse, or write failure.
func NewParseError(stage, file string, cause error) *StageError {
	return &StageError{
		Reason:  ReasonParse,
		Stage:   stage,
		File:    file,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// NewTransformError wraps a failure during cleaning or encryption.
func NewTransformError(stage, file string, cause error) *StageError {
	return &StageError{
		Reason:  ReasonTransform,
		Stage:   stage,
		File:    file,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// ReasonOf returns the Reason carried by an error chain. Errors raised
// outside the stage contract classify as transform failures.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonTransform
}
