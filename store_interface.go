package pricingflow

import (
	"context"
	"errors"
)

// ErrNotFound is returned (wrapped) by stores when a record does not exist
var ErrNotFound = errors.New("not found")

// WorkflowStore persists runs, step executions, step outputs and per-run state
type WorkflowStore interface {
	CreateRun(ctx context.Context, run *WorkflowRun) error
	GetRun(ctx context.Context, runID string) (*WorkflowRun, error)
	UpdateRun(ctx context.Context, run *WorkflowRun) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, err *WorkflowError) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*WorkflowRun, error)

	CreateStepExecution(ctx context.Context, exec *StepExecution) error
	UpdateStepExecution(ctx context.Context, exec *StepExecution) error
	ListStepExecutions(ctx context.Context, runID string) ([]*StepExecution, error)

	SaveStepOutput(ctx context.Context, runID, stepID string, output []byte) error
	LoadStepOutput(ctx context.Context, runID, stepID string) ([]byte, error)

	SaveState(ctx context.Context, runID, key string, value []byte) error
	LoadState(ctx context.Context, runID, key string) ([]byte, error)

	CountRunsByStatus(ctx context.Context, resourceID string, status RunStatus) (int, error)
}

// RunFilter defines filtering criteria for workflow runs
type RunFilter struct {
	WorkflowID string
	Status     *RunStatus
	ResourceID string
	Limit      int
}
