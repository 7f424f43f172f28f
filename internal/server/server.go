// Package server exposes the pricing workflow over HTTP: the Slack
// interactivity endpoint and a small JSON API for runs.
package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/dataeng/pricingflow"
	domain "github.com/dataeng/pricingflow/internal/pricing"
	wfpricing "github.com/dataeng/pricingflow/internal/workflows/pricing"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Workflows is what the handlers need from the orchestrator
type Workflows interface {
	StartWorkflow(ctx context.Context, req wfpricing.StartRequest) (string, error)
	GetWorkflowStatus(ctx context.Context, runID string) (*wfpricing.WorkflowStatus, error)
	CancelWorkflow(ctx context.Context, runID string) error
	ListRuns(ctx context.Context, userID string, limit int) ([]*pricingflow.WorkflowRun, error)
}

var _ Workflows = (*wfpricing.Orchestrator)(nil)

// Config holds the Slack settings the handlers check requests against
type Config struct {
	SigningSecret      string
	ShortcutCallbackID string
	Version            string
}

// Server holds the handler dependencies
type Server struct {
	workflows Workflows
	forms     domain.FormOpener
	config    Config
	logger    zerolog.Logger
}

func New(workflows Workflows, forms domain.FormOpener, config Config, logger zerolog.Logger) *Server {
	return &Server{
		workflows: workflows,
		forms:     forms,
		config:    config,
		logger:    logger.With().Str("component", "server").Logger(),
	}
}

// App builds the fiber app with all routes registered
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "pricing-app",
		ErrorHandler: s.errorHandler,
	})
	s.RegisterRoutes(app)
	return app
}

// RegisterRoutes registers all HTTP routes
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Get("/health", s.handleHealth)

	app.Post("/slack/interactivity", s.handleInteractivity)

	workflows := app.Group("/api/v1/workflows")
	workflows.Get("/", s.handleListRuns)
	workflows.Post("/pricing", s.handleStartWorkflow)
	workflows.Get("/:runId", s.handleGetStatus)
	workflows.Post("/:runId/cancel", s.handleCancelWorkflow)
}

func (s *Server) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "pricing-app",
		"version": s.config.Version,
	})
}

// handleStartWorkflow starts a run from a JSON form submission
func (s *Server) handleStartWorkflow(c fiber.Ctx) error {
	var input wfpricing.Input
	if err := c.Bind().JSON(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if input.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userId is required",
		})
	}

	runID, err := s.workflows.StartWorkflow(c.Context(), wfpricing.StartRequest{
		UserID:      input.UserID,
		Form:        input.Form,
		TriggerType: pricingflow.TriggerAPI,
	})
	if err != nil {
		return s.startError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"runId":   runID,
		"status":  pricingflow.RunStatusPending,
		"message": "Workflow started successfully",
	})
}

func (s *Server) startError(c fiber.Ctx, err error) error {
	if fields := domain.FieldErrors(err); len(fields) > 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Invalid pricing form",
			"fields": fields,
		})
	}
	if pricingflow.IsConcurrencyError(err) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Error().Err(err).Msg("Failed to start workflow")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to start workflow",
	})
}

// handleListRuns lists recent runs, newest first. ?userId= narrows to one
// submitter.
func (s *Server) handleListRuns(c fiber.Ctx) error {
	limit := fiber.Query[int](c, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	runs, err := s.workflows.ListRuns(c.Context(), c.Query("userId"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list workflow runs")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list workflow runs",
		})
	}

	return c.JSON(fiber.Map{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetStatus returns the run with its steps, pipeline runs and result
func (s *Server) handleGetStatus(c fiber.Ctx) error {
	runID := c.Params("runId")

	status, err := s.workflows.GetWorkflowStatus(c.Context(), runID)
	if err != nil {
		if errors.Is(err, pricingflow.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Workflow not found",
			})
		}
		s.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to get workflow status")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get workflow status",
		})
	}

	return c.JSON(status)
}

func (s *Server) handleCancelWorkflow(c fiber.Ctx) error {
	runID := c.Params("runId")

	if err := s.workflows.CancelWorkflow(c.Context(), runID); err != nil {
		if errors.Is(err, pricingflow.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Workflow not found",
			})
		}
		s.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to cancel workflow")
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"runId":   runID,
		"status":  pricingflow.RunStatusCancelled,
		"message": "Workflow cancelled successfully",
	})
}
