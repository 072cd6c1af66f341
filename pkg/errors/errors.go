// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Telos.
// Every failure the protocol engine classifies is expressed as a TelosError
// so that callers branch on the code rather than on message text.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Telos errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeToolFailure indicates a tool invocation failed. Transient kinds
	// (timeout, runtime error) are Tier-1 eligible.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUnauthorized indicates authorization failed.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeAmbiguousFailure indicates an observation that resolves to neither
	// success nor a classifiable failure. Primary trigger for Tree-of-Thoughts.
	CodeAmbiguousFailure ErrorCode = "AMBIGUOUS_FAILURE"

	// CodeCapabilityGap indicates a required tool is absent from the
	// capability registry, or present only below the confidence floor.
	// Tier-2 eligible; never retried by Tier 1.
	CodeCapabilityGap ErrorCode = "CAPABILITY_GAP"

	// CodeCircuitBreaker indicates a task exhausted its Tier-1 retry budget.
	// Fatal to the task, reported to the human escalation boundary.
	CodeCircuitBreaker ErrorCode = "CIRCUIT_BREAKER"

	// CodeResearchExhausted indicates Tier-2 research produced no usable
	// heuristic. Fatal to the task.
	CodeResearchExhausted ErrorCode = "RESEARCH_EXHAUSTED"

	// CodeKnowledgeConflict indicates a versioned knowledge-base write lost
	// an optimistic-concurrency race. Retried internally, escalated only
	// after bounded retries.
	CodeKnowledgeConflict ErrorCode = "KNOWLEDGE_CONFLICT"

	// CodeInvalidPlan indicates a cyclic or malformed plan. Fatal to the
	// mission; such a plan is never executed.
	CodeInvalidPlan ErrorCode = "INVALID_PLAN"

	// CodeMemoryError indicates an episodic memory system error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates a reasoning collaborator error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// TelosError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type TelosError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *TelosError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *TelosError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *TelosError) MarshalJSON() ([]byte, error) {
	type Alias TelosError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new TelosError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *TelosError {
	return &TelosError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *TelosError) WithContext(key string, value interface{}) *TelosError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *TelosError) WithAttribute(key, value string) *TelosError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *TelosError) WithRecoverable(recoverable bool) *TelosError {
	e.Recoverable = recoverable
	return e
}

// AsTelosError attempts to convert an error to a TelosError.
// Returns the error as TelosError if it is one, or wraps it otherwise.
func AsTelosError(err error) *TelosError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TelosError); ok {
		return te
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the ErrorCode of err, or CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if te, ok := err.(*TelosError); ok {
		return te.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if te, ok := err.(*TelosError); ok {
			if te.Code == code {
				return true
			}
			err = te.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *TelosError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
