package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dataeng/pricingflow/internal/mage"
	domain "github.com/dataeng/pricingflow/internal/pricing"
)

var runStatusJSON bool

var runStatusCmd = &cobra.Command{
	Use:   "run-status <mage-run-id>...",
	Short: "Show the status of Mage pipeline runs",
	Long: `Query Mage for the status of one or more pipeline runs, e.g. the ids
recorded on a pricing workflow run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRunStatus,
}

func init() {
	runStatusCmd.Flags().BoolVar(&runStatusJSON, "json", false, "output JSON")
}

type runStatus struct {
	RunID  string `json:"runId"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runRunStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireMage(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Mage.SecretID != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log, cmd.ErrOrStderr())
		if err := resolveMageCredentials(ctx, cfg, awsCfg, logger); err != nil {
			return err
		}
	}

	client, err := mage.New(mage.Config{
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

	results := queryStatuses(ctx, client, args)
	return printStatuses(cmd, results)
}

func queryStatuses(ctx context.Context, api domain.PipelineAPI, runIDs []string) []runStatus {
	results := make([]runStatus, 0, len(runIDs))
	for _, id := range runIDs {
		status, err := api.GetRunStatus(ctx, id)
		r := runStatus{RunID: id, Status: status}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

func printStatuses(cmd *cobra.Command, results []runStatus) error {
	out := cmd.OutOrStdout()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	if runStatusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSTATUS")
		for _, r := range results {
			status := r.Status
			if r.Error != "" {
				status = "error: " + r.Error
			}
			fmt.Fprintf(w, "%s\t%s\n", r.RunID, status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d status lookups failed", failed, len(results))
	}
	return nil
}
