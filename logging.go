package pricingflow

import (
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowProgress  = "workflow_progress"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowFailed    = "workflow_failed"
	EventWorkflowCancelled = "workflow_cancelled"

	EventStepStarted   = "step_started"
	EventStepRetrying  = "step_retrying"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"

	EventPersistenceError = "persistence_error"
)

func LogWorkflowStarted(logger zerolog.Logger, runID, workflowID, resourceID string) {
	logger.Info().
		Str("event", EventWorkflowStarted).
		Str("run_id", runID).
		Str("workflow_id", workflowID).
		Str("resource_id", resourceID).
		Msg("Workflow started")
}

func LogWorkflowProgress(logger zerolog.Logger, runID string, progress float64) {
	logger.Debug().
		Str("event", EventWorkflowProgress).
		Str("run_id", runID).
		Float64("progress", progress).
		Msg("Workflow progress updated")
}

func LogWorkflowCompleted(logger zerolog.Logger, runID string, duration time.Duration) {
	logger.Info().
		Str("event", EventWorkflowCompleted).
		Str("run_id", runID).
		Dur("duration", duration).
		Msg("Workflow completed")
}

func LogWorkflowFailed(logger zerolog.Logger, runID, stepID string, err error) {
	logger.Error().
		Str("event", EventWorkflowFailed).
		Str("run_id", runID).
		Str("step_id", stepID).
		Err(err).
		Msg("Workflow failed")
}

func LogWorkflowCancelled(logger zerolog.Logger, runID string) {
	logger.Warn().
		Str("event", EventWorkflowCancelled).
		Str("run_id", runID).
		Msg("Workflow cancelled")
}

func LogStepStarted(logger zerolog.Logger, stepNum, totalSteps int) {
	logger.Info().
		Str("event", EventStepStarted).
		Int("step_num", stepNum).
		Int("total_steps", totalSteps).
		Msg("Step started")
}

func LogStepRetrying(logger zerolog.Logger, attempt int, delay time.Duration) {
	logger.Warn().
		Str("event", EventStepRetrying).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Step retrying")
}

func LogStepCompleted(logger zerolog.Logger, durationMs int64, attempts int) {
	logger.Info().
		Str("event", EventStepCompleted).
		Int64("duration_ms", durationMs).
		Int("attempts", attempts).
		Msg("Step completed")
}

func LogStepFailed(logger zerolog.Logger, err error, attempt int) {
	logger.Error().
		Str("event", EventStepFailed).
		Err(err).
		Int("attempt", attempt).
		Msg("Step failed")
}

// LogPersistenceError logs a store write that failed without failing the run
func LogPersistenceError(logger zerolog.Logger, runID, operation string, err error) {
	logger.Error().
		Str("event", EventPersistenceError).
		Str("run_id", runID).
		Str("operation", operation).
		Err(err).
		Msg("Persistence error")
}

// WorkflowLogger creates a logger enriched with workflow context
func WorkflowLogger(baseLogger zerolog.Logger, runID, workflowID, resourceID string) zerolog.Logger {
	return baseLogger.With().
		Str("run_id", runID).
		Str("workflow_id", workflowID).
		Str("resource_id", resourceID).
		Logger()
}

// StepLogger creates a logger enriched with step context
func StepLogger(workflowLogger zerolog.Logger, stepID, stepName string, attempt int) zerolog.Logger {
	return workflowLogger.With().
		Str("step_id", stepID).
		Str("step_name", stepName).
		Int("attempt", attempt).
		Logger()
}
