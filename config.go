package pricingflow

import "time"

// ExecutionConfig holds step-level execution parameters
type ExecutionConfig struct {
	MaxRetries   int
	RetryDelayMs int
	RetryBackoff BackoffStrategy

	TimeoutSeconds int
}

// Timeout returns the step timeout as a duration
func (c ExecutionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffStrategy defines retry backoff behavior
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "LINEAR"
	BackoffExponential BackoffStrategy = "EXPONENTIAL"
	BackoffNone        BackoffStrategy = "NONE"
)

// DefaultExecutionConfig runs every step exactly once. Submissions to Mage
// are not idempotent, so retries must be opted into per step.
var DefaultExecutionConfig = ExecutionConfig{
	MaxRetries:     0,
	RetryDelayMs:   1000,
	RetryBackoff:   BackoffLinear,
	TimeoutSeconds: 30,
}

// StepOption allows functional configuration of steps
type StepOption func(*ExecutionConfig)

// WithRetries sets the maximum retry attempts
func WithRetries(max int) StepOption {
	return func(c *ExecutionConfig) {
		c.MaxRetries = max
	}
}

// WithTimeout sets the step timeout
func WithTimeout(d time.Duration) StepOption {
	return func(c *ExecutionConfig) {
		c.TimeoutSeconds = int(d.Seconds())
	}
}

// WithBackoff sets the retry backoff strategy
func WithBackoff(strategy BackoffStrategy) StepOption {
	return func(c *ExecutionConfig) {
		c.RetryBackoff = strategy
	}
}

// WithRetryDelay sets the base retry delay
func WithRetryDelay(d time.Duration) StepOption {
	return func(c *ExecutionConfig) {
		c.RetryDelayMs = int(d.Milliseconds())
	}
}

// StartOption allows functional configuration of workflow execution
type StartOption func(*StartOptions)

// StartOptions holds options for starting a workflow
type StartOptions struct {
	ResourceID       string
	CheckConcurrency bool
	TTL              time.Duration
	Tags             map[string]string
	TriggerType      string
	TriggerSource    string
	TriggerMetadata  map[string]string
	Synchronous      bool
}

// WithResourceID sets the resource ID for concurrency control
func WithResourceID(id string) StartOption {
	return func(opts *StartOptions) {
		opts.ResourceID = id
	}
}

// WithConcurrencyCheck rejects the start when the resource already has a
// running workflow at the engine's limit
func WithConcurrencyCheck(check bool) StartOption {
	return func(opts *StartOptions) {
		opts.CheckConcurrency = check
	}
}

// WithTTL sets how long the run record is retained
func WithTTL(ttl time.Duration) StartOption {
	return func(opts *StartOptions) {
		opts.TTL = ttl
	}
}

// WithTags sets custom tags for the workflow run
func WithTags(tags map[string]string) StartOption {
	return func(opts *StartOptions) {
		opts.Tags = tags
	}
}

// WithTrigger records who or what started the run
func WithTrigger(triggerType, source string, metadata map[string]string) StartOption {
	return func(opts *StartOptions) {
		opts.TriggerType = triggerType
		opts.TriggerSource = source
		opts.TriggerMetadata = metadata
	}
}

// WithSynchronous blocks StartWorkflow until the run reaches a terminal state
func WithSynchronous(sync bool) StartOption {
	return func(opts *StartOptions) {
		opts.Synchronous = sync
	}
}
