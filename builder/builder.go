package builder

import (
	"errors"
	"fmt"

	"github.com/dataeng/pricingflow"
)

// WorkflowBuilder provides a fluent API for building linear workflows.
// Errors are collected and reported by Build.
type WorkflowBuilder struct {
	workflow *pricingflow.Workflow
	lastID   string
	errs     []error
}

// NewWorkflow creates a new workflow builder
func NewWorkflow(id, name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		workflow: pricingflow.NewWorkflowInstance(id, name),
	}
}

// WithDescription sets the workflow description
func (b *WorkflowBuilder) WithDescription(description string) *WorkflowBuilder {
	b.workflow.SetDescription(description)
	return b
}

// WithVersion sets the workflow version
func (b *WorkflowBuilder) WithVersion(version string) *WorkflowBuilder {
	b.workflow.SetVersion(version)
	return b
}

// WithTags sets workflow tags
func (b *WorkflowBuilder) WithTags(tags map[string]string) *WorkflowBuilder {
	b.workflow.SetTags(tags)
	return b
}

// ThenStep appends a step after the last added step
func (b *WorkflowBuilder) ThenStep(step pricingflow.StepExecutor) *WorkflowBuilder {
	stepID := step.GetID()

	if _, err := b.workflow.GetStep(stepID); err == nil {
		b.errs = append(b.errs, fmt.Errorf("step %s registered twice", stepID))
		return b
	}

	b.workflow.AddStep(step)
	b.workflow.Graph().AddNode(stepID, pricingflow.NodeTypeSequential)

	if b.lastID != "" {
		if err := b.workflow.Graph().AddEdge(b.lastID, stepID); err != nil {
			b.errs = append(b.errs, fmt.Errorf("failed to add edge: %w", err))
		}
		// each step's output is the next step's input
		if prev, err := b.workflow.GetStep(b.lastID); err == nil && prev.OutputType() != step.InputType() {
			b.errs = append(b.errs, fmt.Errorf("step %s takes %s but step %s returns %s",
				stepID, step.InputType(), b.lastID, prev.OutputType()))
		}
	}

	b.lastID = stepID
	return b
}

// Sequence appends steps in order
func (b *WorkflowBuilder) Sequence(steps ...pricingflow.StepExecutor) *WorkflowBuilder {
	for _, step := range steps {
		b.ThenStep(step)
	}
	return b
}

// SetEntryPoint sets the workflow entry point explicitly
func (b *WorkflowBuilder) SetEntryPoint(stepID string) *WorkflowBuilder {
	if err := b.workflow.Graph().SetEntryPoint(stepID); err != nil {
		b.errs = append(b.errs, fmt.Errorf("failed to set entry point: %w", err))
	}
	return b
}

// Build validates and returns the workflow
func (b *WorkflowBuilder) Build() (*pricingflow.Workflow, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	if len(b.workflow.Steps()) == 0 {
		return nil, errors.New("workflow has no steps")
	}

	if err := b.workflow.Graph().Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}

	return b.workflow, nil
}

// MustBuild is Build that panics on error
func (b *WorkflowBuilder) MustBuild() *pricingflow.Workflow {
	wf, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build workflow: %v", err))
	}
	return wf
}
