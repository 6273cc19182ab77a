// Package errors provides standardized error handling for the recommendation
// pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeUpstreamTimeout  ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamError    ErrorCode = "UPSTREAM_ERROR"
	ErrCodeParseError       ErrorCode = "PARSE_ERROR"
	ErrCodeResolutionFailed ErrorCode = "RESOLUTION_FAILED"
	ErrCodeEmptyResult      ErrorCode = "EMPTY_RESULT"
	ErrCodePipelineTimeout  ErrorCode = "PIPELINE_TIMEOUT"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is makes errors.Is match on code equality.
func (e *StandardError) Is(target error) bool {
	var se *StandardError
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// ==========================
// Error Constructors
// ==========================

// NewValidationError signals a missing or malformed query. Surfaces
// immediately; never retried.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Request is missing or malformed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamTimeoutError signals a recommendation/search/tag call that hit
// its deadline.
func NewUpstreamTimeoutError(endpoint string, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamTimeout,
		Message:   "Upstream service timed out",
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"endpoint": endpoint},
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamError signals a non-success status from an upstream service.
func NewUpstreamError(endpoint string, status int, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamError,
		Message:   "Upstream service returned an error",
		Details:   details,
		Retryable: status >= 500,
		Metadata:  map[string]interface{}{"endpoint": endpoint, "status": status},
		Timestamp: time.Now().UTC(),
	}
}

// NewParseError signals an unrecognized payload shape. The parser degrades to
// an empty result instead of propagating this; it exists for logging and
// metadata.
func NewParseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeParseError,
		Message:   "Response payload shape not recognized",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewResolutionFailedError signals that a single interest could not be
// resolved. Logged and skipped; never aborts the batch.
func NewResolutionFailedError(interestName string, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResolutionFailed,
		Message:   "Interest could not be resolved to a signal",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"interest": interestName},
		Timestamp: time.Now().UTC(),
	}
}

// NewEmptyResultError marks a valid call that produced zero entities. Distinct
// from failure.
func NewEmptyResultError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmptyResult,
		Message:   "No results for this request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPipelineTimeoutError signals that the wall-clock budget for the whole
// request was exhausted.
func NewPipelineTimeoutError(budget time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodePipelineTimeout,
		Message:   "Request took too long to process",
		Details:   fmt.Sprintf("pipeline budget of %s exhausted", budget),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize ensures any error is a StandardError.
func Normalize(err error) *StandardError {
	var se *StandardError
	if errors.As(err, &se) {
		return se
	}
	return NewInternalError(err)
}
