package pricingflow

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// StepHandler is the typed function that implements a step
type StepHandler[TIn, TOut any] func(ctx *StepContext, input TIn) (TOut, error)

// Step is a typed step definition. Inputs and outputs cross the engine as
// JSON so they can be persisted between steps.
type Step[TIn, TOut any] struct {
	ID          string
	Name        string
	Description string

	Handler StepHandler[TIn, TOut]

	Config ExecutionConfig

	inputType  reflect.Type
	outputType reflect.Type
}

// StepExecutor is the type-erased view of a step that the engine runs
type StepExecutor interface {
	GetID() string
	GetName() string
	GetDescription() string
	GetConfig() ExecutionConfig

	InputType() reflect.Type
	OutputType() reflect.Type

	Execute(ctx *StepContext, input []byte) (output []byte, err error)

	ValidateInput(data []byte) error
}

// NewStep creates a new typed step
func NewStep[TIn, TOut any](
	id, name string,
	handler StepHandler[TIn, TOut],
	opts ...StepOption,
) *Step[TIn, TOut] {
	s := &Step[TIn, TOut]{
		ID:         id,
		Name:       name,
		Handler:    handler,
		Config:     DefaultExecutionConfig,
		inputType:  reflect.TypeOf((*TIn)(nil)).Elem(),
		outputType: reflect.TypeOf((*TOut)(nil)).Elem(),
	}

	for _, opt := range opts {
		opt(&s.Config)
	}

	return s
}

// WithDescription sets the step description and returns the step
func (s *Step[TIn, TOut]) WithDescription(description string) *Step[TIn, TOut] {
	s.Description = description
	return s
}

// GetID returns the step id
func (s *Step[TIn, TOut]) GetID() string {
	return s.ID
}

// GetName returns the display name used in logs
func (s *Step[TIn, TOut]) GetName() string {
	return s.Name
}

// GetDescription returns the step description
func (s *Step[TIn, TOut]) GetDescription() string {
	return s.Description
}

// GetConfig returns the retry and timeout settings
func (s *Step[TIn, TOut]) GetConfig() ExecutionConfig {
	return s.Config
}

// InputType is the reflected TIn, used to check that adjacent steps fit
func (s *Step[TIn, TOut]) InputType() reflect.Type {
	return s.inputType
}

// OutputType is the reflected TOut
func (s *Step[TIn, TOut]) OutputType() reflect.Type {
	return s.outputType
}

// Execute decodes the input, runs the handler and encodes its output
func (s *Step[TIn, TOut]) Execute(ctx *StepContext, inputBytes []byte) ([]byte, error) {
	var input TIn
	if err := json.Unmarshal(inputBytes, &input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}

	output, err := s.Handler(ctx, input)
	if err != nil {
		return nil, err
	}

	outputBytes, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}

	return outputBytes, nil
}

// ValidateInput validates that data can be unmarshaled to TIn
func (s *Step[TIn, TOut]) ValidateInput(data []byte) error {
	var input TIn
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("invalid input for step %s: %w", s.ID, err)
	}
	return nil
}
