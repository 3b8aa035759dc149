package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrValidation  = errors.New("validation failed")
	ErrAggregation = errors.New("snapshot aggregation failed")
)

// Validation error codes.
const (
	CodeUnknownCommittee       = "UNKNOWN_COMMITTEE"
	CodeNotInCommittee         = "CODE_NOT_IN_COMMITTEE"
	CodeUnknownQuestion        = "UNKNOWN_QUESTION_CODE"
	CodeInvalidStatus          = "INVALID_STATUS"
	CodeInvalidCommitteeStatus = "INVALID_COMMITTEE_STATUS"
	CodeEmptyAnswer            = "EMPTY_ANSWER"
	CodeEmptyBatch             = "EMPTY_BATCH"
	CodeEmptyCommitteeList     = "EMPTY_COMMITTEE_LIST"
	CodeEmptyGovernanceID      = "EMPTY_GOVERNANCE_ID"
	CodePolicyDenied           = "POLICY_DENIED"
)

// ValidationError rejects a request before any network call is made.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// AggregationError reports an unexpected internal fault while assembling a snapshot.
// Per-source failures never produce one; they are recorded in the snapshot slot.
type AggregationError struct {
	GovernanceID string
	Source       SourceName
	Err          error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("assemble snapshot %s: source %s: %v", e.GovernanceID, e.Source, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

func (e *AggregationError) Is(target error) bool {
	return target == ErrAggregation
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// ErrorResponse defines the standard JSON error model returned by the operator API.
// TraceID should carry the current OpenTelemetry trace identifier when available to aid diagnostics.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., CODE_NOT_IN_COMMITTEE)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}
