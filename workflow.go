package pricingflow

import (
	"fmt"
)

// Workflow is a validated, immutable blueprint built by the builder package
type Workflow struct {
	id          string
	name        string
	description string
	version     string

	steps map[string]StepExecutor
	graph *ExecutionGraph
	tags  map[string]string
}

// NewWorkflowInstance creates an empty workflow
func NewWorkflowInstance(id, name string) *Workflow {
	return &Workflow{
		id:      id,
		name:    name,
		version: "1.0",
		steps:   make(map[string]StepExecutor),
		graph:   NewExecutionGraph(),
		tags:    make(map[string]string),
	}
}

// ID returns the workflow id recorded on every run
func (w *Workflow) ID() string {
	return w.id
}

// Name returns the human readable name
func (w *Workflow) Name() string {
	return w.name
}

// Description returns the description set by the builder, if any
func (w *Workflow) Description() string {
	return w.description
}

// Version returns the version recorded on every run. Defaults to "1.0".
func (w *Workflow) Version() string {
	return w.version
}

// Graph returns the step dependency graph
func (w *Workflow) Graph() *ExecutionGraph {
	return w.graph
}

// Tags returns the workflow's tags. The map is shared, not copied.
func (w *Workflow) Tags() map[string]string {
	return w.tags
}

// Steps returns every registered step keyed by id
func (w *Workflow) Steps() map[string]StepExecutor {
	return w.steps
}

// GetStep retrieves a step by ID
func (w *Workflow) GetStep(stepID string) (StepExecutor, error) {
	step, exists := w.steps[stepID]
	if !exists {
		return nil, fmt.Errorf("step %s not found in workflow", stepID)
	}
	return step, nil
}

// SetDescription sets the description
func (w *Workflow) SetDescription(description string) {
	w.description = description
}

// SetVersion overrides the default version
func (w *Workflow) SetVersion(version string) {
	w.version = version
}

// SetTags replaces the workflow's tags
func (w *Workflow) SetTags(tags map[string]string) {
	w.tags = tags
}

// AddStep registers a step in the workflow
func (w *Workflow) AddStep(step StepExecutor) {
	w.steps[step.GetID()] = step
}
