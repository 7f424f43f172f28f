package pricingflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name     string
		attempt  int
		strategy BackoffStrategy
		want     time.Duration
	}{
		{"first attempt never waits", 0, BackoffExponential, 0},
		{"linear 1", 1, BackoffLinear, 100 * time.Millisecond},
		{"linear 3", 3, BackoffLinear, 300 * time.Millisecond},
		{"exponential 1", 1, BackoffExponential, 100 * time.Millisecond},
		{"exponential 4", 4, BackoffExponential, 800 * time.Millisecond},
		{"none", 5, BackoffNone, 0},
		{"unknown falls back to linear", 2, BackoffStrategy("JITTER"), 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateBackoff(100, tt.attempt, tt.strategy))
		})
	}
}

func TestDecodeOutput(t *testing.T) {
	type result struct {
		Text string `json:"text"`
	}

	run := &WorkflowRun{RunID: "r1", Output: json.RawMessage(`{"text":"done"}`)}
	out, err := DecodeOutput[result](run)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Text)

	_, err = DecodeOutput[result](&WorkflowRun{RunID: "r2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow run r2 has no output")

	_, err = DecodeOutput[result](&WorkflowRun{RunID: "r3", Output: json.RawMessage(`[1]`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal output")
}
