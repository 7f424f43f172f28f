package pricingflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeConcurrency     = "CONCURRENCY_LIMIT"
	ErrCodeExecutionFailed = "EXECUTION_FAILED"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodePanic           = "PANIC"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// WorkflowError is the failure recorded on a run
type WorkflowError struct {
	Message   string                 `json:"message" dynamodbav:"message"`
	Code      string                 `json:"code" dynamodbav:"code"`
	Step      string                 `json:"step,omitempty" dynamodbav:"step,omitempty"`
	Timestamp time.Time              `json:"timestamp" dynamodbav:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty" dynamodbav:"details,omitempty"`
}

// Error formats the code and message, with the step when known
func (e *WorkflowError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step: %s)", e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewWorkflowError creates a new workflow error
func NewWorkflowError(code, message string) *WorkflowError {
	return &WorkflowError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewWorkflowErrorWithStep creates a workflow error attributed to a step
func NewWorkflowErrorWithStep(code, message, step string) *WorkflowError {
	e := NewWorkflowError(code, message)
	e.Step = step
	return e
}

// WithDetails attaches details to the error
func (e *WorkflowError) WithDetails(details map[string]interface{}) *WorkflowError {
	e.Details = details
	return e
}

// StepError is the failure recorded on a step execution
type StepError struct {
	Message   string                 `json:"message" dynamodbav:"message"`
	Code      string                 `json:"code" dynamodbav:"code"`
	Timestamp time.Time              `json:"timestamp" dynamodbav:"timestamp"`
	Attempt   int                    `json:"attempt" dynamodbav:"attempt"`
	Details   map[string]interface{} `json:"details,omitempty" dynamodbav:"details,omitempty"`
}

// Error formats the code, message and attempt number
func (e *StepError) Error() string {
	return fmt.Sprintf("[%s] %s (attempt: %d)", e.Code, e.Message, e.Attempt)
}

// NewStepError creates a new step error
func NewStepError(code, message string, attempt int) *StepError {
	return &StepError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
		Attempt:   attempt,
	}
}

// ValidationError marks a step failure caused by bad user input rather than
// a downstream system. The engine records it with ErrCodeValidation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns "field: message", or just the message without a field
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ToStepError classifies err into a StepError
func ToStepError(err error, attempt int) *StepError {
	if err == nil {
		return nil
	}

	var se *StepError
	if errors.As(err, &se) {
		return se
	}

	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return NewStepError(ErrCodeValidation, err.Error(), attempt)
	case errors.Is(err, context.DeadlineExceeded):
		return NewStepError(ErrCodeTimeout, err.Error(), attempt)
	case errors.Is(err, context.Canceled):
		return NewStepError(ErrCodeCancelled, err.Error(), attempt)
	}
	return NewStepError(ErrCodeExecutionFailed, err.Error(), attempt)
}

// ToWorkflowError converts a step failure into the error recorded on the run
func ToWorkflowError(err error, stepID string) *WorkflowError {
	if err == nil {
		return nil
	}

	var we *WorkflowError
	if errors.As(err, &we) {
		return we
	}

	return NewWorkflowErrorWithStep(ToStepError(err, 0).Code, err.Error(), stepID)
}

// IsConcurrencyError checks if an error is a concurrency limit error
func IsConcurrencyError(err error) bool {
	var we *WorkflowError
	return errors.As(err, &we) && we.Code == ErrCodeConcurrency
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Code == ErrCodeTimeout
	}
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Code == ErrCodeTimeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}
