package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dataeng/pricingflow"
	"github.com/dataeng/pricingflow/engine"
	domain "github.com/dataeng/pricingflow/internal/pricing"
)

// Options tune how runs are started
type Options struct {
	// RunTTL expires run records in stores that support it
	RunTTL time.Duration
	// LimitPerUser rejects a start while the user has this many active
	// runs. Zero disables the check.
	LimitPerUser int
	// Synchronous runs the workflow inside StartWorkflow and returns its
	// error
	Synchronous bool
}

// StartRequest is one submission of the pricing form
type StartRequest struct {
	UserID      string
	Form        domain.FormSubmission
	TriggerType string
	Metadata    map[string]string
}

// Orchestrator runs pricing-change workflows
type Orchestrator struct {
	workflow  *pricingflow.Workflow
	engine    *engine.Engine
	notifier  domain.EphemeralNotifier
	channelID string
	options   Options
	logger    zerolog.Logger
}

// NewOrchestrator builds the workflow and an engine to run it. Failed runs
// are reported to the submitting user through notifier, which may be nil.
func NewOrchestrator(
	store pricingflow.WorkflowStore,
	deps Dependencies,
	notifier domain.EphemeralNotifier,
	logger zerolog.Logger,
	config engine.EngineConfig,
	options Options,
) (*Orchestrator, error) {
	wf, err := NewPricingWorkflow(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create pricing workflow: %w", err)
	}

	o := &Orchestrator{
		workflow:  wf,
		notifier:  notifier,
		channelID: deps.ChannelID,
		options:   options,
		logger:    logger.With().Str("workflow_id", WorkflowID).Logger(),
	}

	if options.LimitPerUser > 0 {
		config.MaxConcurrentWorkflows = options.LimitPerUser
	}
	o.engine = engine.NewEngine(store,
		engine.WithLogger(logger),
		engine.WithConfig(config),
		engine.WithFailureHandler(o.notifyFailure),
	)

	return o, nil
}

// StartWorkflow starts a run for the submission and returns its id. The form
// is validated first, so an invalid form never creates a run.
func (o *Orchestrator) StartWorkflow(ctx context.Context, req StartRequest) (string, error) {
	if err := req.Form.Validate(); err != nil {
		return "", err
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = pricingflow.TriggerAPI
	}

	o.logger.Info().
		Str("user_id", req.UserID).
		Str("facility_id", req.Form.FacilityID).
		Strs("licenses", req.Form.LicenseTypes).
		Str("trigger", triggerType).
		Msg("Starting pricing workflow")

	runID, err := o.engine.StartWorkflow(
		ctx,
		o.workflow,
		Input{UserID: req.UserID, Form: req.Form},
		pricingflow.WithResourceID(req.UserID),
		pricingflow.WithConcurrencyCheck(o.options.LimitPerUser > 0),
		pricingflow.WithTTL(o.options.RunTTL),
		pricingflow.WithTags(map[string]string{"type": WorkflowID}),
		pricingflow.WithTrigger(triggerType, req.UserID, req.Metadata),
		pricingflow.WithSynchronous(o.options.Synchronous),
	)
	if err != nil {
		if runID != "" {
			return runID, err
		}
		return "", fmt.Errorf("failed to start workflow: %w", err)
	}

	o.logger.Info().Str("run_id", runID).Msg("Pricing workflow started")
	return runID, nil
}

// GetWorkflowStatus returns the run, its steps, the pipeline runs recorded
// so far and the result once completed
func (o *Orchestrator) GetWorkflowStatus(ctx context.Context, runID string) (*WorkflowStatus, error) {
	run, err := o.engine.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow run: %w", err)
	}

	stepExecs, err := o.engine.GetStepExecutions(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get step executions: %w", err)
	}

	status := &WorkflowStatus{
		WorkflowRun:    run,
		StepExecutions: stepExecs,
	}

	state := o.engine.RunState(ctx, runID)
	if ref, err := pricingflow.GetTyped[MessageRef](state, StateMessage); err == nil {
		status.Message = &ref
	} else if !errors.Is(err, pricingflow.ErrNotFound) {
		o.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to load message reference")
	}
	if runs, err := pricingflow.GetTyped[[]domain.PipelineRun](state, StatePipelineRuns); err == nil {
		status.PipelineRuns = runs
	} else if !errors.Is(err, pricingflow.ErrNotFound) {
		o.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to load pipeline runs")
	}

	if run.Status == pricingflow.RunStatusCompleted {
		output, err := pricingflow.DecodeOutput[Result](run)
		if err != nil {
			o.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to parse workflow output")
		} else {
			status.Output = &output
		}
	}

	return status, nil
}

// CancelWorkflow cancels a run. Pipeline runs already submitted to Mage keep
// running.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, runID string) error {
	return o.engine.Cancel(ctx, runID)
}

// ListRuns lists recent pricing runs, optionally for one user
func (o *Orchestrator) ListRuns(ctx context.Context, userID string, limit int) ([]*pricingflow.WorkflowRun, error) {
	return o.engine.ListRuns(ctx, pricingflow.RunFilter{
		WorkflowID: WorkflowID,
		ResourceID: userID,
		Limit:      limit,
	})
}

// Shutdown waits for in-flight runs
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.engine.Shutdown(ctx)
}

// FailureText is the message shown to a user whose run failed
func FailureText(err error) string {
	var (
		ve *pricingflow.ValidationError
		pe *domain.PairError
	)
	switch {
	case errors.Is(err, domain.ErrNoEmail):
		return "Your pricing change was not submitted: " + domain.ErrNoEmail.Error() + "."
	case errors.As(err, &pe):
		return "Your pricing change failed: " + pe.Error()
	case pricingflow.IsTimeoutError(err):
		return "Your pricing change failed: it did not finish in time. Check the pipeline runs in Mage before resubmitting."
	case errors.As(err, &ve):
		return "Your pricing change was not submitted: " + ve.Error()
	}
	return "Your pricing change failed: " + err.Error()
}

func (o *Orchestrator) notifyFailure(ctx context.Context, run *pricingflow.WorkflowRun, err error) {
	if o.notifier == nil {
		return
	}

	var input Input
	if jsonErr := json.Unmarshal(run.Input, &input); jsonErr != nil || input.UserID == "" {
		o.logger.Warn().Str("run_id", run.RunID).Msg("Cannot notify failure without a user")
		return
	}

	if notifyErr := o.notifier.PostEphemeral(ctx, o.channelID, input.UserID, FailureText(err)); notifyErr != nil {
		o.logger.Error().Err(notifyErr).
			Str("run_id", run.RunID).
			Str("user_id", input.UserID).
			Msg("Failed to notify user of failed run")
	}
}
