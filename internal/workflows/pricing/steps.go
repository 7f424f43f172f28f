package pricing

import (
	"time"

	"github.com/dataeng/pricingflow"
	domain "github.com/dataeng/pricingflow/internal/pricing"
)

// Step ids, in execution order
const (
	StepCollectInput   = "collect_input"
	StepComposeMessage = "compose_message"
	StepPostMessage    = "post_message"
	StepSubmitRuns     = "submit_runs"
	StepDelay          = "delay"
	StepPollStatus     = "poll_status"
)

// Submission and polling make one Mage call per pair, sequentially
const batchStepTimeout = 10 * time.Minute

// NewCollectInputStep checks the submitting user and the form before anything
// is posted or submitted
func NewCollectInputStep() *pricingflow.Step[Input, Request] {
	return pricingflow.NewStep(
		StepCollectInput,
		"Collect Input",
		func(ctx *pricingflow.StepContext, input Input) (Request, error) {
			if input.UserID == "" {
				return Request{}, &pricingflow.ValidationError{Field: "userId", Message: "required"}
			}
			if err := input.Form.Validate(); err != nil {
				return Request{}, err
			}
			ctx.Logger.Info().
				Str("user_id", input.UserID).
				Str("facility_id", input.Form.FacilityID).
				Strs("licenses", input.Form.LicenseTypes).
				Msg("Pricing form accepted")
			return Request(input), nil
		},
	).WithDescription("Validates the submitted pricing form")
}

// NewComposeMessageStep builds the pending message text
func NewComposeMessageStep() *pricingflow.Step[Request, ComposedMessage] {
	return pricingflow.NewStep(
		StepComposeMessage,
		"Compose Message",
		func(ctx *pricingflow.StepContext, req Request) (ComposedMessage, error) {
			text := domain.ComposeMessage(req.UserID, req.Form.FacilityID, req.Form.LicenseTypes)
			return ComposedMessage{Request: req, Text: text}, nil
		},
	)
}

// NewPostMessageStep posts the pending message to channelID and records where
// it landed in run state
func NewPostMessageStep(poster domain.MessagePoster, channelID string) *pricingflow.Step[ComposedMessage, PostedMessage] {
	return pricingflow.NewStep(
		StepPostMessage,
		"Post Message",
		func(ctx *pricingflow.StepContext, msg ComposedMessage) (PostedMessage, error) {
			channel, ts, err := poster.PostMessage(ctx, channelID, msg.Text)
			if err != nil {
				return PostedMessage{}, err
			}
			if err := ctx.State.Set(StateMessage, MessageRef{ChannelID: channel, TS: ts}); err != nil {
				ctx.Logger.Warn().Err(err).Msg("Failed to record message reference")
			}
			ctx.Logger.Info().Str("channel", channel).Str("ts", ts).Msg("Pending message posted")
			return PostedMessage{Request: msg.Request, ChannelID: channel, MessageTS: ts}, nil
		},
	)
}

// NewSubmitRunsStep submits one Mage pipeline run per facility and license
func NewSubmitRunsStep(submitter *domain.Submitter) *pricingflow.Step[PostedMessage, SubmittedRuns] {
	return pricingflow.NewStep(
		StepSubmitRuns,
		"Submit Pipeline Runs",
		func(ctx *pricingflow.StepContext, posted PostedMessage) (SubmittedRuns, error) {
			runs, err := submitter.Submit(ctx, domain.SubmitRequest{
				UserID:    posted.Request.UserID,
				Form:      posted.Request.Form,
				ChannelID: posted.ChannelID,
				MessageTS: posted.MessageTS,
			})
			if err != nil {
				return SubmittedRuns{}, err
			}
			if err := pricingflow.SetTyped(ctx.State, StatePipelineRuns, runs); err != nil {
				ctx.Logger.Warn().Err(err).Msg("Failed to record pipeline runs")
			}
			return SubmittedRuns{UserID: posted.Request.UserID, Runs: runs}, nil
		},
		pricingflow.WithTimeout(batchStepTimeout),
	)
}

// NewDelayStep waits d before polling so the pipelines have time to finish
func NewDelayStep(d time.Duration) *pricingflow.Step[SubmittedRuns, SubmittedRuns] {
	return pricingflow.NewDelayStep[SubmittedRuns](StepDelay, "Wait For Pipelines", d)
}

// NewPollStatusStep polls every submitted run once and replaces the pending
// message with the outcome. The message location comes from post_message's
// output.
func NewPollStatusStep(poller *domain.Poller) *pricingflow.Step[SubmittedRuns, Result] {
	return pricingflow.NewStep(
		StepPollStatus,
		"Poll Pipeline Status",
		func(ctx *pricingflow.StepContext, submitted SubmittedRuns) (Result, error) {
			posted, err := pricingflow.GetTypedOutput[PostedMessage](ctx.Outputs, StepPostMessage)
			if err != nil {
				return Result{}, err
			}
			result, err := poller.Poll(ctx, domain.PollRequest{
				UserID:    submitted.UserID,
				Runs:      submitted.Runs,
				ChannelID: posted.ChannelID,
				MessageTS: posted.MessageTS,
			})
			if err != nil {
				return Result{}, err
			}
			if err := pricingflow.SetTyped(ctx.State, StatePipelineRuns, result.Runs); err != nil {
				ctx.Logger.Warn().Err(err).Msg("Failed to record polled pipeline runs")
			}
			return *result, nil
		},
		pricingflow.WithTimeout(batchStepTimeout),
	)
}
