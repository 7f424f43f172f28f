package pricingflow

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a workflow run
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

func (s RunStatus) String() string {
	return string(s)
}

// StepStatus is the lifecycle state of a single step execution
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusRetrying  StepStatus = "RETRYING"
)

// IsTerminal reports whether the step has finished
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}

func (s StepStatus) String() string {
	return string(s)
}

// Trigger types recorded on a run
const (
	TriggerSlackShortcut = "slack_shortcut"
	TriggerAPI           = "api"
)

// WorkflowRun is one invocation of a workflow, e.g. one pricing-change
// submission made from the Slack form.
type WorkflowRun struct {
	RunID           string `json:"runId" dynamodbav:"run_id"`
	WorkflowID      string `json:"workflowId" dynamodbav:"workflow_id"`
	WorkflowVersion string `json:"workflowVersion" dynamodbav:"workflow_version"`

	Status   RunStatus `json:"status" dynamodbav:"status"`
	Progress float64   `json:"progress" dynamodbav:"progress"` // 0.0 to 1.0

	CreatedAt   time.Time  `json:"createdAt" dynamodbav:"created_at"`
	StartedAt   *time.Time `json:"startedAt,omitempty" dynamodbav:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" dynamodbav:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt" dynamodbav:"updated_at"`

	Input  json.RawMessage `json:"input,omitempty" dynamodbav:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty" dynamodbav:"output,omitempty"`

	Error *WorkflowError `json:"error,omitempty" dynamodbav:"error,omitempty"`

	// ResourceID scopes concurrency checks; the pricing workflow uses the
	// submitting Slack user.
	ResourceID string            `json:"resourceId,omitempty" dynamodbav:"resource_id,omitempty"`
	Trigger    *TriggerInfo      `json:"trigger,omitempty" dynamodbav:"trigger,omitempty"`
	Tags       map[string]string `json:"tags,omitempty" dynamodbav:"tags,omitempty"`

	TTL int64 `json:"-" dynamodbav:"ttl,omitempty"`
}

// TriggerInfo captures what initiated the run
type TriggerInfo struct {
	Type      string            `json:"type" dynamodbav:"type"`
	Source    string            `json:"source" dynamodbav:"source"` // Slack user ID or API caller
	Timestamp time.Time         `json:"timestamp" dynamodbav:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
}

// StepExecution tracks one step within a run
type StepExecution struct {
	RunID          string `json:"runId" dynamodbav:"run_id"`
	StepID         string `json:"stepId" dynamodbav:"step_id"`
	ExecutionIndex int    `json:"executionIndex" dynamodbav:"execution_index"`

	Status StepStatus `json:"status" dynamodbav:"status"`

	StartedAt   *time.Time `json:"startedAt,omitempty" dynamodbav:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" dynamodbav:"completed_at,omitempty"`
	DurationMs  int64      `json:"durationMs" dynamodbav:"duration_ms"`

	Input  json.RawMessage `json:"input,omitempty" dynamodbav:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty" dynamodbav:"output,omitempty"`

	Error   *StepError `json:"error,omitempty" dynamodbav:"error,omitempty"`
	Attempt int        `json:"attempt" dynamodbav:"attempt"`

	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// NodeType defines the type of graph node. Only sequential nodes exist; the
// pricing pipeline has no branching.
type NodeType string

const NodeTypeSequential NodeType = "SEQUENTIAL"

func (n NodeType) String() string {
	return string(n)
}
