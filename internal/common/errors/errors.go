// Package errors provides standardized error handling for the agent
// orchestration pipeline.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Turn-level error taxonomy surfaced to the caller.
const (
	ErrCodeValidationError     ErrorCode = "VALIDATION_ERROR"
	ErrCodeAPIError            ErrorCode = "API_ERROR"
	ErrCodeToolError           ErrorCode = "TOOL_ERROR"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
	ErrCodeClarificationNeeded ErrorCode = "CLARIFICATION_NEEDED"
)

// Infrastructure and stage-local error codes.
const (
	ErrCodeClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"
	ErrCodePlanningFailed       ErrorCode = "PLANNING_FAILED"
	ErrCodeResponseParseFailed  ErrorCode = "RESPONSE_PARSE_FAILED"
	ErrCodeUnknownTool          ErrorCode = "UNKNOWN_TOOL"
	ErrCodeInvalidToolArgs      ErrorCode = "INVALID_TOOL_ARGS"
	ErrCodeRecordStoreFailed    ErrorCode = "RECORD_STORE_FAILED"
	ErrCodeSessionStoreFailed   ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeSearchQueryFailed    ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeTurnSuperseded       ErrorCode = "TURN_SUPERSEDED"
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

// New creates a StandardError with the given code and message.
func New(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewAPIError creates a retry-exhausted model gateway error.
func NewAPIError(details string) *StandardError {
	return New(ErrCodeAPIError, "model gateway exhausted retries", details, false)
}

// NewToolError creates a tool execution error after retry and fallback failed.
func NewToolError(tool, details string) *StandardError {
	e := New(ErrCodeToolError, fmt.Sprintf("tool %s failed", tool), details, false)
	e.Metadata = map[string]interface{}{"tool": tool}
	return e
}

// NewTimeoutError creates an error for a bounded operation exceeding its deadline.
func NewTimeoutError(operation, details string) *StandardError {
	e := New(ErrCodeTimeout, fmt.Sprintf("%s exceeded its deadline", operation), details, true)
	e.Metadata = map[string]interface{}{"operation": operation}
	return e
}

// NewClarificationError creates an error for a specialist that lacks
// required input. RequestedInfo names the missing fields.
func NewClarificationError(message string, requestedInfo []string) *StandardError {
	e := New(ErrCodeClarificationNeeded, message, "", false)
	e.Metadata = map[string]interface{}{"requested_info": requestedInfo}
	return e
}

// CodeOf extracts the ErrorCode from err, defaulting to API_ERROR for
// unrecognized errors so the caller always gets a taxonomy member.
func CodeOf(err error) ErrorCode {
	if se, ok := err.(*StandardError); ok {
		return se.Code
	}
	return ErrCodeAPIError
}
