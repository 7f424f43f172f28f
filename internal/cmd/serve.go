package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dataeng/pricingflow/engine"
	"github.com/dataeng/pricingflow/internal/config"
	"github.com/dataeng/pricingflow/internal/mage"
	domain "github.com/dataeng/pricingflow/internal/pricing"
	"github.com/dataeng/pricingflow/internal/secrets"
	"github.com/dataeng/pricingflow/internal/server"
	"github.com/dataeng/pricingflow/internal/slackapi"
	wfpricing "github.com/dataeng/pricingflow/internal/workflows/pricing"
	"github.com/dataeng/pricingflow/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the Slack interactivity endpoint and the workflow API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := errors.Join(cfg.RequireSlack(), cfg.RequireMage()); err != nil {
		return err
	}

	logger := newLogger(cfg.Log, cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}

	if err := resolveMageCredentials(ctx, cfg, awsCfg, logger); err != nil {
		return err
	}

	wfStore, err := store.New(cfg.Store.Backend, cfg.Store.TableName, awsCfg)
	if err != nil {
		return err
	}
	if err := store.Ping(ctx, wfStore); err != nil {
		return fmt.Errorf("run store unavailable: %w", err)
	}

	slackClient := slackapi.New(cfg.Slack.BotToken)
	mageClient, err := mage.New(mage.Config{
		BaseURL:      cfg.Mage.BaseURL,
		ScheduleID:   cfg.Mage.ScheduleID,
		TriggerToken: cfg.Mage.TriggerToken,
		APIKey:       cfg.Mage.APIKey,
		OAuthToken:   cfg.Mage.OAuthToken,
		Timeout:      cfg.Mage.Timeout,
	})
	if err != nil {
		return err
	}

	orchestrator, err := wfpricing.NewOrchestrator(
		wfStore,
		wfpricing.Dependencies{
			Poster:    slackClient,
			Submitter: domain.NewSubmitter(slackClient, mageClient, cfg.Pricing.EmailOverride, logger),
			Poller:    domain.NewPoller(mageClient, slackClient, logger),
			ChannelID: cfg.Slack.ChannelID,
			PollDelay: cfg.Pricing.PollDelay,
		},
		slackClient,
		logger,
		engine.EngineConfig{
			MaxConcurrentWorkflows: engine.DefaultEngineConfig.MaxConcurrentWorkflows,
			DefaultTimeout:         cfg.Pricing.RunTimeout,
			FailureHandlerTimeout:  engine.DefaultEngineConfig.FailureHandlerTimeout,
		},
		wfpricing.Options{
			RunTTL:       cfg.Store.RunTTL,
			LimitPerUser: cfg.Pricing.MaxActivePerUser,
		},
	)
	if err != nil {
		return err
	}

	app := server.New(orchestrator, slackClient, server.Config{
		SigningSecret:      cfg.Slack.SigningSecret,
		ShortcutCallbackID: cfg.Slack.ShortcutCallbackID,
		Version:            Version,
	}, logger).App()

	listenErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("address", cfg.Server.Addr).
			Str("store", cfg.Store.Backend).
			Str("channel_id", cfg.Slack.ChannelID).
			Msg("Starting HTTP server")
		listenErr <- app.Listen(cfg.Server.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Runs still waiting on Mage are cancelled once the timeout passes
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Workflow runs cancelled during shutdown")
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// loadAWSConfig loads the default AWS credential chain when DynamoDB or
// Secrets Manager is configured
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	if cfg.Store.Backend != store.BackendDynamoDB && cfg.Mage.SecretID == "" {
		return aws.Config{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// resolveMageCredentials fills Mage credentials missing from the config from
// the configured secret
func resolveMageCredentials(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger zerolog.Logger) error {
	if cfg.Mage.SecretID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	creds, err := secrets.LoadMageCredentials(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.Mage.SecretID)
	if err != nil {
		return err
	}

	if cfg.Mage.APIKey == "" {
		cfg.Mage.APIKey = creds.APIKey
	}
	if cfg.Mage.OAuthToken == "" {
		cfg.Mage.OAuthToken = creds.OAuthToken
	}

	logger.Info().Str("secret_id", cfg.Mage.SecretID).Msg("Mage credentials loaded from Secrets Manager")
	return nil
}
