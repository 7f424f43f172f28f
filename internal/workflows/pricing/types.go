package pricing

import (
	"github.com/dataeng/pricingflow"
	domain "github.com/dataeng/pricingflow/internal/pricing"
)

// Input starts a run: who submitted the form and what they entered
type Input struct {
	UserID string                `json:"userId"`
	Form   domain.FormSubmission `json:"form"`
}

// Step 1: collect_input validates the submission
type Request struct {
	UserID string                `json:"userId"`
	Form   domain.FormSubmission `json:"form"`
}

// Step 2: compose_message
type ComposedMessage struct {
	Request Request `json:"request"`
	Text    string  `json:"text"`
}

// Step 3: post_message
type PostedMessage struct {
	Request   Request `json:"request"`
	ChannelID string  `json:"channelId"`
	MessageTS string  `json:"messageTs"`
}

// Step 4: submit_runs (delay passes it through unchanged)
type SubmittedRuns struct {
	UserID string               `json:"userId"`
	Runs   []domain.PipelineRun `json:"runs"`
}

// Step 6: poll_status, the run's output
type Result = domain.PollResult

// State keys written by the steps
const (
	StateMessage      = "message"
	StatePipelineRuns = "pipeline_runs"
)

// MessageRef locates the posted message
type MessageRef struct {
	ChannelID string `json:"channelId"`
	TS        string `json:"ts"`
}

// WorkflowStatus is a run with its step executions, the submitted pipeline
// runs and, once completed, the typed result
type WorkflowStatus struct {
	*pricingflow.WorkflowRun
	StepExecutions []*pricingflow.StepExecution `json:"stepExecutions,omitempty"`
	Message        *MessageRef                  `json:"message,omitempty"`
	PipelineRuns   []domain.PipelineRun         `json:"pipelineRuns,omitempty"`
	Output         *Result                      `json:"output,omitempty"`
}
