package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dataeng/pricingflow"
)

// StepExecutionResult holds the result of a step execution
type StepExecutionResult struct {
	StepID       string
	Output       []byte
	DurationMs   int64
	AttemptsMade int
}

// executeStep runs a single step with its timeout and retry policy and
// records every transition as a StepExecution
func (e *Engine) executeStep(
	ctx context.Context,
	run *pricingflow.WorkflowRun,
	step pricingflow.StepExecutor,
	index int,
	inputBytes []byte,
	outputs pricingflow.StepOutputAccessor,
	state pricingflow.StateAccessor,
) (*StepExecutionResult, error) {
	config := step.GetConfig()
	runLogger := pricingflow.WorkflowLogger(e.logger, run.RunID, run.WorkflowID, run.ResourceID)

	now := time.Now()
	stepExec := &pricingflow.StepExecution{
		RunID:          run.RunID,
		StepID:         step.GetID(),
		ExecutionIndex: index,
		Status:         pricingflow.StepStatusPending,
		Input:          inputBytes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.CreateStepExecution(ctx, stepExec); err != nil {
		return nil, fmt.Errorf("failed to create step execution: %w", err)
	}

	var (
		outputBytes []byte
		lastErr     error
		stepLogger  zerolog.Logger
	)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		stepLogger = pricingflow.StepLogger(runLogger, step.GetID(), step.GetName(), attempt)

		if attempt > 0 {
			delay := pricingflow.CalculateBackoff(config.RetryDelayMs, attempt, config.RetryBackoff)
			pricingflow.LogStepRetrying(stepLogger, attempt, delay)

			stepExec.Status = pricingflow.StepStatusRetrying
			stepExec.Attempt = attempt
			e.saveStepExecution(ctx, stepExec, stepLogger)

			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		startedAt := time.Now()
		stepExec.Status = pricingflow.StepStatusRunning
		stepExec.StartedAt = &startedAt
		stepExec.Attempt = attempt
		e.saveStepExecution(ctx, stepExec, stepLogger)

		outputBytes, lastErr = e.runOnce(ctx, run, step, inputBytes, attempt, stepLogger, outputs, state)

		duration := time.Since(startedAt)
		stepExec.DurationMs = duration.Milliseconds()

		if lastErr == nil {
			completedAt := time.Now()
			stepExec.Status = pricingflow.StepStatusCompleted
			stepExec.Output = outputBytes
			stepExec.CompletedAt = &completedAt
			e.saveStepExecution(ctx, stepExec, stepLogger)

			if err := e.store.SaveStepOutput(ctx, run.RunID, step.GetID(), outputBytes); err != nil {
				pricingflow.LogPersistenceError(stepLogger, run.RunID, "save_step_output", err)
			}

			pricingflow.LogStepCompleted(stepLogger, stepExec.DurationMs, attempt+1)

			return &StepExecutionResult{
				StepID:       step.GetID(),
				Output:       outputBytes,
				DurationMs:   stepExec.DurationMs,
				AttemptsMade: attempt + 1,
			}, nil
		}

		pricingflow.LogStepFailed(stepLogger, lastErr, attempt)

		// No point retrying once the run itself is over.
		if ctx.Err() != nil {
			break
		}
	}

	completedAt := time.Now()
	stepExec.Status = pricingflow.StepStatusFailed
	stepExec.CompletedAt = &completedAt
	stepExec.Error = pricingflow.ToStepError(lastErr, stepExec.Attempt)
	e.saveStepExecution(context.WithoutCancel(ctx), stepExec, stepLogger)

	return nil, fmt.Errorf("step %s failed after %d attempts: %w", step.GetID(), stepExec.Attempt+1, lastErr)
}

// runOnce executes one attempt under the step timeout, converting panics
// into errors
func (e *Engine) runOnce(
	ctx context.Context,
	run *pricingflow.WorkflowRun,
	step pricingflow.StepExecutor,
	inputBytes []byte,
	attempt int,
	logger zerolog.Logger,
	outputs pricingflow.StepOutputAccessor,
	state pricingflow.StateAccessor,
) (output []byte, err error) {
	execCtx, cancel := context.WithTimeout(ctx, step.GetConfig().Timeout())
	defer cancel()

	stepCtx := &pricingflow.StepContext{
		Context: execCtx,
		RunID:   run.RunID,
		StepID:  step.GetID(),
		Attempt: attempt,
		Logger:  logger,
		Outputs: outputs,
		State:   state,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Step panicked")
			err = pricingflow.NewStepError(pricingflow.ErrCodePanic, fmt.Sprintf("step panicked: %v", r), attempt)
		}
	}()

	output, err = step.Execute(stepCtx, inputBytes)
	if err != nil && execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = fmt.Errorf("step timed out after %s: %w", step.GetConfig().Timeout(), context.DeadlineExceeded)
	}
	return output, err
}

func (e *Engine) saveStepExecution(ctx context.Context, exec *pricingflow.StepExecution, logger zerolog.Logger) {
	exec.UpdatedAt = time.Now()
	if err := e.store.UpdateStepExecution(ctx, exec); err != nil {
		pricingflow.LogPersistenceError(logger, exec.RunID, "update_step_execution", err)
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
