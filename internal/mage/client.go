// Package mage is a small client for the Mage pipeline API: triggering a
// pipeline schedule and reading a pipeline run's status.
package mage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/client"
)

const (
	DefaultBaseURL = "https://cluster.mage.ai/mageai-24-data-engineering/api"
	DefaultTimeout = 30 * time.Second
)

// ErrMissingRunID is returned when a trigger response has no pipeline run id
var ErrMissingRunID = errors.New("no pipeline run id returned")

// APIError is a non-2xx response from Mage
type APIError struct {
	StatusCode int
	Body       string
}

// Error includes the trimmed response body when there is one
func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("mage api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("mage api error (status=%d): %s", e.StatusCode, body)
}

// Config holds connection settings. ScheduleID and TriggerToken identify the
// API trigger of the pricing pipeline.
type Config struct {
	BaseURL      string
	ScheduleID   string
	TriggerToken string
	APIKey       string
	OAuthToken   string
	Timeout      time.Duration
}

// Client triggers the pricing pipeline and reads pipeline run status through
// the Mage REST API. It is safe for concurrent use.
type Client struct {
	http         *client.Client
	scheduleID   string
	triggerToken string
}

// New creates a client. Credentials are sent on every request as the
// x-api-key header and the oauth_token cookie.
func New(cfg Config) (*Client, error) {
	if cfg.ScheduleID == "" || cfg.TriggerToken == "" {
		return nil, errors.New("mage schedule id and trigger token are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := client.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("x-api-key", cfg.APIKey).
		SetCookie("oauth_token", cfg.OAuthToken)

	return &Client{
		http:         hc,
		scheduleID:   cfg.ScheduleID,
		triggerToken: cfg.TriggerToken,
	}, nil
}

// RunVariables are the pipeline variables of one pricing adjustment. Rates
// and margin are forwarded exactly as entered.
type RunVariables struct {
	Email            string      `json:"email"`
	FacilityID       string      `json:"facility_id"`
	License          string      `json:"license"`
	MarginPercentage json.Number `json:"margin_percentage"`
	Prod             bool        `json:"prod"`
	WeekdayDayRate   json.Number `json:"weekday_day_rate"`
	WeekdayNightRate json.Number `json:"weekday_night_rate"`
	WeekendDayRate   json.Number `json:"weekend_day_rate"`
	WeekendNightRate json.Number `json:"weekend_night_rate"`
	MessageTS        string      `json:"message_ts"`
	ChannelID        string      `json:"channel_id"`
}

type triggerRequest struct {
	PipelineRun triggerRun `json:"pipeline_run"`
}

type triggerRun struct {
	Variables      RunVariables `json:"variables"`
	ErrorOnFailure bool         `json:"error_on_failure"`
}

// RunID is a pipeline run id. Mage returns ids as JSON numbers; strings are
// accepted too.
type RunID string

// UnmarshalJSON accepts a number, a string or null
func (id *RunID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RunID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("pipeline run id: %w", err)
	}
	*id = RunID(n.String())
	return nil
}

type pipelineRunResponse struct {
	PipelineRun *struct {
		ID     RunID  `json:"id"`
		Status string `json:"status"`
	} `json:"pipeline_run"`
}

// SubmitRun triggers one pipeline run and returns its id
func (c *Client) SubmitRun(ctx context.Context, vars RunVariables) (string, error) {
	path := fmt.Sprintf("/pipeline_schedules/%s/pipeline_runs/%s",
		url.PathEscape(c.scheduleID), url.PathEscape(c.triggerToken))

	req := c.http.R().
		SetContext(ctx).
		SetJSON(triggerRequest{PipelineRun: triggerRun{Variables: vars, ErrorOnFailure: true}})

	var out pipelineRunResponse
	if err := c.do(req, fiber.MethodPost, path, &out); err != nil {
		return "", err
	}
	if out.PipelineRun == nil || out.PipelineRun.ID == "" {
		return "", ErrMissingRunID
	}
	return string(out.PipelineRun.ID), nil
}

// GetRunStatus returns the run's status string, e.g. "running", "completed"
// or "failed"
func (c *Client) GetRunStatus(ctx context.Context, runID string) (string, error) {
	req := c.http.R().SetContext(ctx)

	var out pipelineRunResponse
	if err := c.do(req, fiber.MethodGet, "/pipeline_runs/"+url.PathEscape(runID), &out); err != nil {
		return "", err
	}
	if out.PipelineRun == nil {
		return "", nil
	}
	return out.PipelineRun.Status, nil
}

func (c *Client) do(req *client.Request, method, path string, out any) error {
	resp, err := req.SetMethod(method).SetURL(path).Send()
	if err != nil {
		return fmt.Errorf("mage request %s %s: %w", method, path, err)
	}
	// Close also releases req back to the pool
	defer resp.Close()

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return &APIError{StatusCode: status, Body: string(resp.Body())}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode mage response: %w", err)
	}
	return nil
}
