package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dataeng/pricingflow"
)

// MemoryStore implements pricingflow.WorkflowStore in process memory. It is
// the default backend for a single-instance deployment and for tests; runs
// are lost on restart.
type MemoryStore struct {
	mu             sync.RWMutex
	runs           map[string]*pricingflow.WorkflowRun
	stepExecutions map[string]map[string]*pricingflow.StepExecution // runID -> stepID -> execution
	stepOutputs    map[string]map[string][]byte                     // runID -> stepID -> output
	state          map[string]map[string][]byte                     // runID -> key -> value
}

// NewMemoryStore creates a new in-memory workflow store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:           make(map[string]*pricingflow.WorkflowRun),
		stepExecutions: make(map[string]map[string]*pricingflow.StepExecution),
		stepOutputs:    make(map[string]map[string][]byte),
		state:          make(map[string]map[string][]byte),
	}
}

var _ pricingflow.WorkflowStore = (*MemoryStore)(nil)

// copyRun copies the run and the maps it references so callers never share
// mutable state with the store
func copyRun(run *pricingflow.WorkflowRun) *pricingflow.WorkflowRun {
	c := *run
	c.Tags = maps.Clone(run.Tags)
	c.Input = slices.Clone(run.Input)
	c.Output = slices.Clone(run.Output)
	if run.Trigger != nil {
		t := *run.Trigger
		t.Metadata = maps.Clone(run.Trigger.Metadata)
		c.Trigger = &t
	}
	if run.Error != nil {
		e := *run.Error
		c.Error = &e
	}
	return &c
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *pricingflow.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.RunID]; exists {
		return fmt.Errorf("workflow run %s already exists", run.RunID)
	}

	s.runs[run.RunID] = copyRun(run)
	s.stepExecutions[run.RunID] = make(map[string]*pricingflow.StepExecution)
	s.stepOutputs[run.RunID] = make(map[string][]byte)
	s.state[run.RunID] = make(map[string][]byte)

	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*pricingflow.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[runID]
	if !exists {
		return nil, fmt.Errorf("workflow run %s: %w", runID, pricingflow.ErrNotFound)
	}
	return copyRun(run), nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *pricingflow.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.RunID]; !exists {
		return fmt.Errorf("workflow run %s: %w", run.RunID, pricingflow.ErrNotFound)
	}
	s.runs[run.RunID] = copyRun(run)
	return nil
}

func (s *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status pricingflow.RunStatus, err *pricingflow.WorkflowError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[runID]
	if !exists {
		return fmt.Errorf("workflow run %s: %w", runID, pricingflow.ErrNotFound)
	}

	now := time.Now()
	run.Status = status
	run.Error = err
	run.UpdatedAt = now
	if status.IsTerminal() && run.CompletedAt == nil {
		run.CompletedAt = &now
	}
	return nil
}

// ListRuns returns matching runs, newest first
func (s *MemoryStore) ListRuns(ctx context.Context, filter pricingflow.RunFilter) ([]*pricingflow.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*pricingflow.WorkflowRun
	for _, run := range s.runs {
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.ResourceID != "" && run.ResourceID != filter.ResourceID {
			continue
		}
		runs = append(runs, copyRun(run))
	}

	slices.SortFunc(runs, func(a, b *pricingflow.WorkflowRun) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

func (s *MemoryStore) CreateStepExecution(ctx context.Context, exec *pricingflow.StepExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stepExecutions[exec.RunID]; !exists {
		s.stepExecutions[exec.RunID] = make(map[string]*pricingflow.StepExecution)
	}

	execCopy := *exec
	s.stepExecutions[exec.RunID][exec.StepID] = &execCopy
	return nil
}

func (s *MemoryStore) UpdateStepExecution(ctx context.Context, exec *pricingflow.StepExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stepExecutions[exec.RunID]; !exists {
		return fmt.Errorf("step executions for run %s: %w", exec.RunID, pricingflow.ErrNotFound)
	}

	execCopy := *exec
	s.stepExecutions[exec.RunID][exec.StepID] = &execCopy
	return nil
}

// ListStepExecutions returns the run's step executions ordered by execution
// index
func (s *MemoryStore) ListStepExecutions(ctx context.Context, runID string) ([]*pricingflow.StepExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runExecs := s.stepExecutions[runID]
	executions := make([]*pricingflow.StepExecution, 0, len(runExecs))
	for _, exec := range runExecs {
		execCopy := *exec
		executions = append(executions, &execCopy)
	}

	slices.SortFunc(executions, func(a, b *pricingflow.StepExecution) int {
		return a.ExecutionIndex - b.ExecutionIndex
	})
	return executions, nil
}

func (s *MemoryStore) SaveStepOutput(ctx context.Context, runID, stepID string, output []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stepOutputs[runID]; !exists {
		s.stepOutputs[runID] = make(map[string][]byte)
	}
	s.stepOutputs[runID][stepID] = slices.Clone(output)
	return nil
}

func (s *MemoryStore) LoadStepOutput(ctx context.Context, runID, stepID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	output, exists := s.stepOutputs[runID][stepID]
	if !exists {
		return nil, fmt.Errorf("step output %s/%s: %w", runID, stepID, pricingflow.ErrNotFound)
	}
	return slices.Clone(output), nil
}

func (s *MemoryStore) SaveState(ctx context.Context, runID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state[runID]; !exists {
		s.state[runID] = make(map[string][]byte)
	}
	s.state[runID][key] = slices.Clone(value)
	return nil
}

func (s *MemoryStore) LoadState(ctx context.Context, runID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.state[runID][key]
	if !exists {
		return nil, fmt.Errorf("state key %s: %w", key, pricingflow.ErrNotFound)
	}
	return slices.Clone(value), nil
}

func (s *MemoryStore) CountRunsByStatus(ctx context.Context, resourceID string, status pricingflow.RunStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, run := range s.runs {
		if run.ResourceID == resourceID && run.Status == status {
			count++
		}
	}
	return count, nil
}
