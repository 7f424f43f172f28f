package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dataeng/pricingflow/internal/mage"
)

var (
	// ErrNoEmail means the submitting user's email could not be resolved
	ErrNoEmail = errors.New("could not retrieve email for the workflow starter")

	// ErrNoRuns means there is nothing to poll
	ErrNoRuns = errors.New("no pipeline runs to poll")
)

// PairError reports a failure for one facility and license. Processing stops
// at the first one; runs submitted before it are left running.
type PairError struct {
	Facility string
	License  string
	Err      error
}

// Error names the facility and license that failed
func (e *PairError) Error() string {
	return fmt.Sprintf("an error was encountered during facility %s/%s: %v", e.Facility, e.License, e.Err)
}

// Unwrap returns the underlying Mage or Slack error
func (e *PairError) Unwrap() error {
	return e.Err
}

// SubmitRequest is one pricing change ready for submission. ChannelID and
// MessageTS identify the pending message, which the pipeline receives so it
// can reference it.
type SubmitRequest struct {
	UserID    string
	Form      FormSubmission
	ChannelID string
	MessageTS string
}

// Submitter triggers one pipeline run per facility and license
type Submitter struct {
	identity      IdentityResolver
	pipelines     PipelineAPI
	emailOverride string
	logger        zerolog.Logger
}

// NewSubmitter creates a Submitter. When emailOverride is set it is sent to
// the pipeline instead of the user's address; the lookup still has to
// succeed.
func NewSubmitter(identity IdentityResolver, pipelines PipelineAPI, emailOverride string, logger zerolog.Logger) *Submitter {
	return &Submitter{
		identity:      identity,
		pipelines:     pipelines,
		emailOverride: emailOverride,
		logger:        logger.With().Str("component", "submitter").Logger(),
	}
}

// Submit triggers the runs sequentially, facility-major, and returns them in
// submission order with Status unset
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) ([]PipelineRun, error) {
	email, err := s.identity.LookupUserEmail(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEmail, err)
	}
	if email == "" {
		return nil, ErrNoEmail
	}
	if s.emailOverride != "" {
		email = s.emailOverride
	}

	var runs []PipelineRun
	for _, raw := range ParseFacilityIDs(req.Form.FacilityID) {
		facility := NormalizeFacilityID(raw)
		for _, license := range req.Form.LicenseTypes {
			runID, err := s.pipelines.SubmitRun(ctx, mage.RunVariables{
				Email:            email,
				FacilityID:       facility,
				License:          license,
				MarginPercentage: req.Form.MarginPercentage,
				Prod:             true,
				WeekdayDayRate:   req.Form.WeekdayDay,
				WeekdayNightRate: req.Form.WeekdayNight,
				WeekendDayRate:   req.Form.WeekendDay,
				WeekendNightRate: req.Form.WeekendNight,
				MessageTS:        req.MessageTS,
				ChannelID:        req.ChannelID,
			})
			if err == nil && runID == "" {
				err = mage.ErrMissingRunID
			}
			if err != nil {
				s.logger.Error().Err(err).
					Str("facility", facility).
					Str("license", license).
					Int("submitted", len(runs)).
					Msg("Pipeline submission failed")
				return nil, &PairError{Facility: facility, License: license, Err: err}
			}

			s.logger.Info().
				Str("facility", facility).
				Str("license", license).
				Str("pipeline_run_id", runID).
				Msg("Pipeline run submitted")

			runs = append(runs, PipelineRun{Facility: facility, License: license, RunID: runID})
		}
	}

	return runs, nil
}
