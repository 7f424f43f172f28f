package pricingflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// StepContext is what a step handler sees of the running workflow
type StepContext struct {
	context.Context

	RunID   string
	StepID  string
	Attempt int

	// Logger carries run_id, step_id, step_name and attempt
	Logger zerolog.Logger

	// Outputs reads outputs of steps that already completed in this run
	Outputs StepOutputAccessor

	// State is per-run key/value storage that outlives a single step
	State StateAccessor
}

// StepOutputAccessor reads the outputs of earlier steps
type StepOutputAccessor interface {
	GetOutput(stepID string, target interface{}) error
}

// GetTypedOutput reads an earlier step's output as T
func GetTypedOutput[T any](accessor StepOutputAccessor, stepID string) (T, error) {
	var result T
	err := accessor.GetOutput(stepID, &result)
	return result, err
}

// StateAccessor reads and writes per-run state
type StateAccessor interface {
	Set(key string, value interface{}) error
	Get(key string, target interface{}) error
}

// SetTyped stores value under key
func SetTyped[T any](accessor StateAccessor, key string, value T) error {
	return accessor.Set(key, value)
}

// GetTyped loads the value under key as T
func GetTyped[T any](accessor StateAccessor, key string) (T, error) {
	var result T
	err := accessor.Get(key, &result)
	return result, err
}

// stepOutputAccessor caches outputs it has read; step outputs never change
// once written.
type stepOutputAccessor struct {
	ctx   context.Context
	runID string
	store WorkflowStore
	cache map[string][]byte
}

// NewStepOutputAccessor creates an output accessor bound to one run
func NewStepOutputAccessor(ctx context.Context, runID string, wfStore WorkflowStore) StepOutputAccessor {
	return &stepOutputAccessor{
		ctx:   ctx,
		runID: runID,
		store: wfStore,
		cache: make(map[string][]byte),
	}
}

func (a *stepOutputAccessor) GetOutput(stepID string, target interface{}) error {
	data, ok := a.cache[stepID]
	if !ok {
		var err error
		data, err = a.store.LoadStepOutput(a.ctx, a.runID, stepID)
		if err != nil {
			return fmt.Errorf("failed to load output for step %s: %w", stepID, err)
		}
		a.cache[stepID] = data
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal output for step %s: %w", stepID, err)
	}
	return nil
}

type stateAccessor struct {
	ctx   context.Context
	runID string
	store WorkflowStore
	cache map[string][]byte
}

// NewStateAccessor creates a state accessor bound to one run
func NewStateAccessor(ctx context.Context, runID string, wfStore WorkflowStore) StateAccessor {
	return &stateAccessor{
		ctx:   ctx,
		runID: runID,
		store: wfStore,
		cache: make(map[string][]byte),
	}
}

func (a *stateAccessor) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal state value for key %s: %w", key, err)
	}

	if err := a.store.SaveState(a.ctx, a.runID, key, data); err != nil {
		return fmt.Errorf("failed to save state for key %s: %w", key, err)
	}
	a.cache[key] = data
	return nil
}

func (a *stateAccessor) Get(key string, target interface{}) error {
	data, ok := a.cache[key]
	if !ok {
		var err error
		data, err = a.store.LoadState(a.ctx, a.runID, key)
		if err != nil {
			return fmt.Errorf("failed to load state for key %s: %w", key, err)
		}
		a.cache[key] = data
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal state for key %s: %w", key, err)
	}
	return nil
}
