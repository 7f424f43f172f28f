package pricing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// PollRequest identifies the runs to check and the message to update
type PollRequest struct {
	UserID    string
	Runs      []PipelineRun
	ChannelID string
	MessageTS string
}

// PollResult is the outcome written back to the message
type PollResult struct {
	Runs      []PipelineRun `json:"runs"`
	Status    string        `json:"status"`
	Succeeded bool          `json:"succeeded"`
	Text      string        `json:"text"`
}

// Poller reads run statuses once and reports the result on the message
type Poller struct {
	pipelines PipelineAPI
	updater   MessageUpdater
	logger    zerolog.Logger
}

// NewPoller creates a poller that reads statuses through pipelines and edits
// the pending message through updater
func NewPoller(pipelines PipelineAPI, updater MessageUpdater, logger zerolog.Logger) *Poller {
	return &Poller{
		pipelines: pipelines,
		updater:   updater,
		logger:    logger.With().Str("component", "poller").Logger(),
	}
}

// Poll fetches each run's status in order, then replaces the pending message
// with a success or failure notice. A failed status request aborts without
// touching the message. Poll does not retry.
func (p *Poller) Poll(ctx context.Context, req PollRequest) (*PollResult, error) {
	if len(req.Runs) == 0 {
		return nil, ErrNoRuns
	}

	runs := make([]PipelineRun, len(req.Runs))
	for i, run := range req.Runs {
		status, err := p.pipelines.GetRunStatus(ctx, run.RunID)
		if err != nil {
			p.logger.Error().Err(err).
				Str("facility", run.Facility).
				Str("license", run.License).
				Str("pipeline_run_id", run.RunID).
				Msg("Status check failed")
			return nil, &PairError{Facility: run.Facility, License: run.License, Err: fmt.Errorf("status check failed: %w", err)}
		}
		run.Status = status
		runs[i] = run
	}

	agg := AggregateRuns(runs)
	text := ResultMessage(agg, req.UserID)

	if err := p.updater.UpdateMessage(ctx, req.ChannelID, req.MessageTS, text); err != nil {
		return nil, fmt.Errorf("failed to update message %s: %w", req.MessageTS, err)
	}

	p.logger.Info().
		Str("status", agg.Status).
		Int("runs", len(runs)).
		Msg("Pricing result posted")

	return &PollResult{
		Runs:      runs,
		Status:    agg.Status,
		Succeeded: !agg.Failed(),
		Text:      text,
	}, nil
}
