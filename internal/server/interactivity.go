package server

import (
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/slack-go/slack"

	"github.com/dataeng/pricingflow"
	domain "github.com/dataeng/pricingflow/internal/pricing"
	"github.com/dataeng/pricingflow/internal/slackapi"
	wfpricing "github.com/dataeng/pricingflow/internal/workflows/pricing"
)

// handleInteractivity receives signed Slack interaction payloads. The
// shortcut opens the pricing form; submitting the form starts a run.
// Slack expects an answer within three seconds, so runs start in the
// background.
func (s *Server) handleInteractivity(c fiber.Ctx) error {
	if err := slackapi.VerifyRequest(slackHeaders(c), c.Body(), s.config.SigningSecret); err != nil {
		s.logger.Warn().Err(err).Msg("Rejected Slack request")
		return fiber.NewError(fiber.StatusUnauthorized, "invalid signature")
	}

	payload := c.FormValue("payload")
	if payload == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing payload")
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	logger := s.logger.With().
		Str("interaction", string(callback.Type)).
		Str("user_id", callback.User.ID).
		Logger()

	switch callback.Type {
	case slack.InteractionTypeShortcut, slack.InteractionTypeMessageAction:
		if callback.CallbackID != s.config.ShortcutCallbackID {
			logger.Debug().Str("callback_id", callback.CallbackID).Msg("Ignoring unknown shortcut")
			return c.SendStatus(fiber.StatusOK)
		}
		if err := s.forms.OpenForm(c.Context(), callback.TriggerID); err != nil {
			logger.Error().Err(err).Msg("Failed to open pricing form")
			return fiber.NewError(fiber.StatusBadGateway, "failed to open form")
		}
		logger.Info().Msg("Pricing form opened")
		return c.SendStatus(fiber.StatusOK)

	case slack.InteractionTypeViewSubmission:
		if callback.View.CallbackID != slackapi.ModalCallbackID {
			return c.SendStatus(fiber.StatusOK)
		}
		return s.submitForm(c, callback)
	}

	logger.Debug().Msg("Ignoring interaction")
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) submitForm(c fiber.Ctx, callback slack.InteractionCallback) error {
	form := slackapi.ParseSubmission(callback.View.State)

	if err := form.Validate(); err != nil {
		return c.JSON(slack.NewErrorsViewSubmissionResponse(domain.FieldErrors(err)))
	}

	runID, err := s.workflows.StartWorkflow(c.Context(), wfpricing.StartRequest{
		UserID:      callback.User.ID,
		Form:        form,
		TriggerType: pricingflow.TriggerSlackShortcut,
		Metadata: map[string]string{
			"team_id": callback.Team.ID,
			"view_id": callback.View.ID,
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", callback.User.ID).Msg("Failed to start workflow from form")
		if pricingflow.IsConcurrencyError(err) {
			return c.JSON(slack.NewErrorsViewSubmissionResponse(map[string]string{
				domain.FieldFacilityID: "You already have a pricing change in progress. Try again once it finishes.",
			}))
		}
		return c.JSON(slack.NewErrorsViewSubmissionResponse(map[string]string{
			domain.FieldFacilityID: "The pricing change could not be started. Please try again.",
		}))
	}

	s.logger.Info().Str("run_id", runID).Str("user_id", callback.User.ID).Msg("Pricing workflow started from form")

	// An empty 200 closes the modal
	return c.SendStatus(fiber.StatusOK)
}

// slackHeaders copies the signature headers into an http.Header for the
// slack-go verifier
func slackHeaders(c fiber.Ctx) http.Header {
	h := http.Header{}
	for _, name := range []string{"X-Slack-Signature", "X-Slack-Request-Timestamp"} {
		if v := c.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	return h
}
