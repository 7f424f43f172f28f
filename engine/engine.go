package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dataeng/pricingflow"
)

// FailureHandler is called once after a run is marked FAILED. It receives a
// context detached from the run so it can still reach external systems
// after the run's own context was cancelled or timed out.
type FailureHandler func(ctx context.Context, run *pricingflow.WorkflowRun, err error)

// Engine runs workflows and records their progress in a WorkflowStore
type Engine struct {
	store  pricingflow.WorkflowStore
	logger zerolog.Logger
	config EngineConfig

	failureHandlers []FailureHandler

	// admitMu serializes the concurrency check with run creation
	admitMu sync.Mutex

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// EngineConfig holds engine configuration
type EngineConfig struct {
	// MaxConcurrentWorkflows bounds active runs per resource when a run is
	// started with WithConcurrencyCheck
	MaxConcurrentWorkflows int
	// DefaultTimeout bounds a whole run, including delay steps
	DefaultTimeout time.Duration
	// FailureHandlerTimeout bounds each FailureHandler call
	FailureHandlerTimeout time.Duration
}

// DefaultEngineConfig provides sensible defaults
var DefaultEngineConfig = EngineConfig{
	MaxConcurrentWorkflows: 10,
	DefaultTimeout:         10 * time.Minute,
	FailureHandlerTimeout:  15 * time.Second,
}

// EngineOption configures the workflow engine
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the engine
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig sets a custom configuration for the engine
func WithConfig(config EngineConfig) EngineOption {
	return func(e *Engine) {
		e.config = config
	}
}

// WithFailureHandler registers a handler for failed runs
func WithFailureHandler(h FailureHandler) EngineOption {
	return func(e *Engine) {
		e.failureHandlers = append(e.failureHandlers, h)
	}
}

// NewEngine creates a new workflow engine. Without WithLogger it logs to
// stdout at Info level.
func NewEngine(store pricingflow.WorkflowStore, opts ...EngineOption) *Engine {
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	eng := &Engine{
		store:  store,
		logger: defaultLogger,
		config: DefaultEngineConfig,
		active: make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(eng)
	}

	return eng
}

// StartWorkflow creates a run and executes it. By default execution happens
// in the background and only the run ID is returned; WithSynchronous waits
// and returns the run's error. Input that does not decode into the first
// step's input type is rejected before a run is created.
func (e *Engine) StartWorkflow(
	ctx context.Context,
	wf *pricingflow.Workflow,
	input interface{},
	opts ...pricingflow.StartOption,
) (string, error) {
	options := &pricingflow.StartOptions{}
	for _, opt := range opts {
		opt(options)
	}

	inputBytes, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to serialize workflow input: %w", err)
	}

	if err := validateFirstStepInput(wf, inputBytes); err != nil {
		return "", fmt.Errorf("invalid workflow input: %w", err)
	}

	runID := uuid.New().String()
	now := time.Now()
	run := &pricingflow.WorkflowRun{
		RunID:           runID,
		WorkflowID:      wf.ID(),
		WorkflowVersion: wf.Version(),
		Status:          pricingflow.RunStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		Input:           inputBytes,
		ResourceID:      options.ResourceID,
		Trigger: &pricingflow.TriggerInfo{
			Type:      options.TriggerType,
			Source:    options.TriggerSource,
			Timestamp: now,
			Metadata:  options.TriggerMetadata,
		},
		Tags: mergeTags(wf.Tags(), options.Tags),
	}

	if options.TTL > 0 {
		run.TTL = now.Add(options.TTL).Unix()
	}

	if err := e.admit(ctx, run, options); err != nil {
		return "", err
	}

	e.logger.Info().
		Str("run_id", runID).
		Str("workflow_id", wf.ID()).
		Str("resource_id", options.ResourceID).
		Msg("Workflow run created")

	// The run outlives the request that started it; keep values, drop
	// cancellation.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.DefaultTimeout)
	e.track(runID, cancel)

	if options.Synchronous {
		defer e.untrack(runID)
		return runID, e.executeWorkflow(runCtx, wf, run)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.untrack(runID)
		_ = e.executeWorkflow(runCtx, wf, run)
	}()

	return runID, nil
}

// mergeTags layers run tags over the workflow's own
func mergeTags(workflowTags, runTags map[string]string) map[string]string {
	if len(workflowTags) == 0 {
		return runTags
	}
	merged := make(map[string]string, len(workflowTags)+len(runTags))
	for k, v := range workflowTags {
		merged[k] = v
	}
	for k, v := range runTags {
		merged[k] = v
	}
	return merged
}

func validateFirstStepInput(wf *pricingflow.Workflow, input []byte) error {
	order, err := wf.Graph().ExecutionOrder()
	if err != nil || len(order) == 0 {
		return err
	}
	step, err := wf.GetStep(order[0])
	if err != nil {
		return err
	}
	return step.ValidateInput(input)
}

// admit creates the run record. With a concurrency check the count and the
// create happen under admitMu, so parallel starts in this process cannot
// both pass the limit. Other processes sharing the store are not covered.
func (e *Engine) admit(ctx context.Context, run *pricingflow.WorkflowRun, options *pricingflow.StartOptions) error {
	if options.CheckConcurrency && options.ResourceID != "" {
		e.admitMu.Lock()
		defer e.admitMu.Unlock()

		if err := e.checkConcurrency(ctx, options.ResourceID); err != nil {
			return err
		}
	}

	if err := e.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create workflow run: %w", err)
	}
	return nil
}

func (e *Engine) checkConcurrency(ctx context.Context, resourceID string) error {
	active := 0
	for _, status := range []pricingflow.RunStatus{pricingflow.RunStatusPending, pricingflow.RunStatusRunning} {
		n, err := e.store.CountRunsByStatus(ctx, resourceID, status)
		if err != nil {
			return fmt.Errorf("failed to count active runs: %w", err)
		}
		active += n
	}

	if active >= e.config.MaxConcurrentWorkflows {
		return pricingflow.NewWorkflowError(
			pricingflow.ErrCodeConcurrency,
			fmt.Sprintf("%s already has %d active workflow runs", resourceID, active),
		)
	}
	return nil
}

func (e *Engine) track(runID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[runID] = cancel
}

func (e *Engine) untrack(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.active[runID]; ok {
		cancel()
		delete(e.active, runID)
	}
}

// executeWorkflow runs every step in order, feeding each step's output to
// the next one
func (e *Engine) executeWorkflow(ctx context.Context, wf *pricingflow.Workflow, run *pricingflow.WorkflowRun) error {
	logger := pricingflow.WorkflowLogger(e.logger, run.RunID, run.WorkflowID, run.ResourceID)

	startTime := time.Now()
	run.Status = pricingflow.RunStatusRunning
	run.StartedAt = &startTime
	run.UpdatedAt = startTime

	if err := e.store.UpdateRun(ctx, run); err != nil {
		pricingflow.LogPersistenceError(logger, run.RunID, "update_run_running", err)
		return err
	}
	pricingflow.LogWorkflowStarted(logger, run.RunID, run.WorkflowID, run.ResourceID)

	executionOrder, err := wf.Graph().ExecutionOrder()
	if err != nil {
		return e.failWorkflow(ctx, run, "", err)
	}

	logger.Debug().Strs("execution_order", executionOrder).Msg("Execution order determined")

	outputs := pricingflow.NewStepOutputAccessor(ctx, run.RunID, e.store)
	state := pricingflow.NewStateAccessor(ctx, run.RunID, e.store)

	stepInput := []byte(run.Input)
	totalSteps := len(executionOrder)

	for i, stepID := range executionOrder {
		if ctx.Err() != nil {
			return e.interrupted(ctx, run, stepID, ctx.Err())
		}

		step, err := wf.GetStep(stepID)
		if err != nil {
			return e.failWorkflow(ctx, run, stepID, err)
		}

		pricingflow.LogStepStarted(pricingflow.StepLogger(logger, stepID, step.GetName(), 0), i+1, totalSteps)

		result, err := e.executeStep(ctx, run, step, i, stepInput, outputs, state)
		if err != nil {
			return e.interrupted(ctx, run, stepID, err)
		}

		stepInput = result.Output
		run.Progress = float64(i+1) / float64(totalSteps)
		run.UpdatedAt = time.Now()

		if err := e.store.UpdateRun(ctx, run); err != nil {
			pricingflow.LogPersistenceError(logger, run.RunID, "update_run_progress", err)
		}
		pricingflow.LogWorkflowProgress(logger, run.RunID, run.Progress)
	}

	run.Output = stepInput
	return e.completeWorkflow(ctx, run)
}

// interrupted decides between CANCELLED (explicit cancel) and FAILED
func (e *Engine) interrupted(ctx context.Context, run *pricingflow.WorkflowRun, stepID string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return e.cancelWorkflow(context.WithoutCancel(ctx), run)
	}
	return e.failWorkflow(ctx, run, stepID, err)
}

func (e *Engine) completeWorkflow(ctx context.Context, run *pricingflow.WorkflowRun) error {
	completedAt := time.Now()
	run.Status = pricingflow.RunStatusCompleted
	run.Progress = 1.0
	run.CompletedAt = &completedAt
	run.UpdatedAt = completedAt

	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update run on completion: %w", err)
	}

	pricingflow.LogWorkflowCompleted(e.logger, run.RunID, completedAt.Sub(*run.StartedAt))
	return nil
}

func (e *Engine) failWorkflow(ctx context.Context, run *pricingflow.WorkflowRun, stepID string, err error) error {
	// The run context may already be dead (timeout); persist regardless.
	ctx = context.WithoutCancel(ctx)

	completedAt := time.Now()
	run.Status = pricingflow.RunStatusFailed
	run.CompletedAt = &completedAt
	run.UpdatedAt = completedAt
	run.Error = pricingflow.ToWorkflowError(err, stepID)

	if updateErr := e.store.UpdateRun(ctx, run); updateErr != nil {
		pricingflow.LogPersistenceError(e.logger, run.RunID, "update_run_failed", updateErr)
	}

	pricingflow.LogWorkflowFailed(e.logger, run.RunID, stepID, err)

	for _, h := range e.failureHandlers {
		hctx, cancel := context.WithTimeout(ctx, e.config.FailureHandlerTimeout)
		h(hctx, run, err)
		cancel()
	}

	return err
}

func (e *Engine) cancelWorkflow(ctx context.Context, run *pricingflow.WorkflowRun) error {
	completedAt := time.Now()
	run.Status = pricingflow.RunStatusCancelled
	run.CompletedAt = &completedAt
	run.UpdatedAt = completedAt
	run.Error = pricingflow.NewWorkflowError(pricingflow.ErrCodeCancelled, "workflow cancelled")

	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update run on cancellation: %w", err)
	}

	pricingflow.LogWorkflowCancelled(e.logger, run.RunID)
	return nil
}

// GetRun retrieves workflow run status
func (e *Engine) GetRun(ctx context.Context, runID string) (*pricingflow.WorkflowRun, error) {
	return e.store.GetRun(ctx, runID)
}

// GetStepExecutions retrieves all step executions for a run
func (e *Engine) GetStepExecutions(ctx context.Context, runID string) ([]*pricingflow.StepExecution, error) {
	return e.store.ListStepExecutions(ctx, runID)
}

// RunState reads the per-run state written by steps. Missing keys fail
// with an error wrapping pricingflow.ErrNotFound.
func (e *Engine) RunState(ctx context.Context, runID string) pricingflow.StateAccessor {
	return pricingflow.NewStateAccessor(ctx, runID, e.store)
}

// Cancel stops a run. A run executing in this process is interrupted and
// marks itself CANCELLED; any other non-terminal run is marked directly.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if run.Status.IsTerminal() {
		return fmt.Errorf("cannot cancel workflow in %s state", run.Status)
	}

	e.mu.Lock()
	cancel, running := e.active[runID]
	e.mu.Unlock()

	if running {
		cancel()
		return nil
	}

	// Not executing here: a run orphaned by a restart, or one owned by
	// another process.
	wfErr := pricingflow.NewWorkflowError(pricingflow.ErrCodeCancelled, "workflow cancelled")
	if err := e.store.UpdateRunStatus(ctx, runID, pricingflow.RunStatusCancelled, wfErr); err != nil {
		return fmt.Errorf("failed to update run on cancellation: %w", err)
	}
	pricingflow.LogWorkflowCancelled(e.logger, runID)
	return nil
}

// ListRuns lists workflow runs with filtering
func (e *Engine) ListRuns(ctx context.Context, filter pricingflow.RunFilter) ([]*pricingflow.WorkflowRun, error) {
	return e.store.ListRuns(ctx, filter)
}

// Shutdown waits for background runs to finish. When ctx expires first, the
// remaining runs are cancelled and Shutdown waits for them to record it.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	e.mu.Lock()
	for _, cancel := range e.active {
		cancel()
	}
	e.mu.Unlock()

	<-done
	return ctx.Err()
}
