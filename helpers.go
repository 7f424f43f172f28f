package pricingflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// CalculateBackoff returns the delay before the given retry attempt.
//   - EXPONENTIAL: baseDelay * 2^(attempt-1)
//   - LINEAR: baseDelay * attempt
//   - NONE: no delay
//
// Attempt 0 is the first execution and never waits.
func CalculateBackoff(baseDelayMs int, attempt int, strategy BackoffStrategy) time.Duration {
	if attempt <= 0 {
		return 0
	}

	baseDelay := time.Duration(baseDelayMs) * time.Millisecond

	switch strategy {
	case BackoffExponential:
		return baseDelay * time.Duration(1<<(attempt-1))
	case BackoffNone:
		return 0
	default:
		return baseDelay * time.Duration(attempt)
	}
}

// DecodeOutput unmarshals a completed run's output into T
func DecodeOutput[T any](run *WorkflowRun) (T, error) {
	var out T
	if len(run.Output) == 0 {
		return out, fmt.Errorf("workflow run %s has no output", run.RunID)
	}
	if err := json.Unmarshal(run.Output, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	return out, nil
}
