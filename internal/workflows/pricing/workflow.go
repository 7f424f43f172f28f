// Package pricing wires the pricing-change steps into a workflow and runs
// it on the engine.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/dataeng/pricingflow"
	"github.com/dataeng/pricingflow/builder"
	domain "github.com/dataeng/pricingflow/internal/pricing"
)

const (
	WorkflowID      = "pricing_change"
	WorkflowVersion = "1.0"

	// DefaultPollDelay is how long Mage gets before the runs are polled
	DefaultPollDelay = 2 * time.Minute
)

// Dependencies are the collaborators the steps call
type Dependencies struct {
	Poster    domain.MessagePoster
	Submitter *domain.Submitter
	Poller    *domain.Poller

	// ChannelID receives the pending and result messages
	ChannelID string
	PollDelay time.Duration
}

func (d Dependencies) validate() error {
	var errs []error
	if d.Poster == nil {
		errs = append(errs, errors.New("message poster is required"))
	}
	if d.Submitter == nil {
		errs = append(errs, errors.New("submitter is required"))
	}
	if d.Poller == nil {
		errs = append(errs, errors.New("poller is required"))
	}
	if d.ChannelID == "" {
		errs = append(errs, errors.New("channel id is required"))
	}
	return errors.Join(errs...)
}

// NewPricingWorkflow builds collect_input -> compose_message ->
// post_message -> submit_runs -> delay -> poll_status
func NewPricingWorkflow(deps Dependencies) (*pricingflow.Workflow, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	delay := deps.PollDelay
	if delay <= 0 {
		delay = DefaultPollDelay
	}

	wf, err := builder.NewWorkflow(WorkflowID, "Pricing Change").
		WithDescription("Submits pricing adjustments to Mage and reports the outcome in Slack").
		WithVersion(WorkflowVersion).
		WithTags(map[string]string{"team": "dataeng"}).
		Sequence(
			NewCollectInputStep(),
			NewComposeMessageStep(),
			NewPostMessageStep(deps.Poster, deps.ChannelID),
			NewSubmitRunsStep(deps.Submitter),
			NewDelayStep(delay),
			NewPollStatusStep(deps.Poller),
		).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	return wf, nil
}
