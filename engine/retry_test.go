package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataeng/pricingflow"
	"github.com/dataeng/pricingflow/builder"
)

// flakyStep fails until it has been called succeedOn times
func flakyStep(calls *int32, succeedOn int32, opts ...pricingflow.StepOption) pricingflow.StepExecutor {
	return pricingflow.NewStep("lookup", "Lookup", func(ctx *pricingflow.StepContext, in changeRequest) (changeRequest, error) {
		if atomic.AddInt32(calls, 1) < succeedOn {
			return in, errors.New("temporary failure")
		}
		return in, nil
	}, opts...)
}

func runSync(t *testing.T, eng *Engine, step pricingflow.StepExecutor) (*pricingflow.WorkflowRun, time.Duration) {
	t.Helper()

	wf := builder.NewWorkflow("retry_test", "Retry Test").ThenStep(step).MustBuild()

	start := time.Now()
	runID, _ := eng.StartWorkflow(context.Background(), wf, changeRequest{}, pricingflow.WithSynchronous(true))
	elapsed := time.Since(start)

	run, err := eng.GetRun(context.Background(), runID)
	require.NoError(t, err)
	return run, elapsed
}

func TestEngine_NoRetriesByDefault(t *testing.T) {
	eng, _ := createTestEngine(t)

	var calls int32
	run, _ := runSync(t, eng, flakyStep(&calls, 2))

	assert.Equal(t, pricingflow.RunStatusFailed, run.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEngine_RetrySuccess(t *testing.T) {
	eng, _ := createTestEngine(t)

	var calls int32
	run, _ := runSync(t, eng, flakyStep(&calls, 3,
		pricingflow.WithRetries(3),
		pricingflow.WithRetryDelay(10*time.Millisecond),
	))

	assert.Equal(t, pricingflow.RunStatusCompleted, run.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	execs, err := eng.GetStepExecutions(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, pricingflow.StepStatusCompleted, execs[0].Status)
	assert.Equal(t, 2, execs[0].Attempt)
}

func TestEngine_RetryExhaustion(t *testing.T) {
	eng, _ := createTestEngine(t)

	var calls int32
	run, _ := runSync(t, eng, flakyStep(&calls, 100,
		pricingflow.WithRetries(2),
		pricingflow.WithRetryDelay(10*time.Millisecond),
	))

	assert.Equal(t, pricingflow.RunStatusFailed, run.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Contains(t, run.Error.Message, "step lookup failed after 3 attempts: temporary failure")

	execs, err := eng.GetStepExecutions(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, pricingflow.StepStatusFailed, execs[0].Status)
	assert.Equal(t, 2, execs[0].Error.Attempt)
}

func TestEngine_Backoff(t *testing.T) {
	tests := []struct {
		name     string
		strategy pricingflow.BackoffStrategy
		delay    time.Duration
		min, max time.Duration
	}{
		// both wait 50ms then 100ms over two retries
		{"linear", pricingflow.BackoffLinear, 50 * time.Millisecond, 150 * time.Millisecond, 2 * time.Second},
		{"exponential", pricingflow.BackoffExponential, 50 * time.Millisecond, 150 * time.Millisecond, 2 * time.Second},
		{"none", pricingflow.BackoffNone, time.Second, 0, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := createTestEngine(t)

			var calls int32
			run, elapsed := runSync(t, eng, flakyStep(&calls, 3,
				pricingflow.WithRetries(2),
				pricingflow.WithRetryDelay(tt.delay),
				pricingflow.WithBackoff(tt.strategy),
			))

			assert.Equal(t, pricingflow.RunStatusCompleted, run.Status)
			assert.GreaterOrEqual(t, elapsed, tt.min)
			assert.Less(t, elapsed, tt.max)
		})
	}
}

func TestEngine_StepTimeout(t *testing.T) {
	eng, _ := createTestEngine(t)

	run, elapsed := runSync(t, eng, blockingStep("slow", nil, pricingflow.WithTimeout(time.Second)))

	assert.Equal(t, pricingflow.RunStatusFailed, run.Status)
	assert.Equal(t, pricingflow.ErrCodeTimeout, run.Error.Code)
	assert.Contains(t, run.Error.Message, "step timed out after 1s")
	assert.GreaterOrEqual(t, elapsed, time.Second)

	execs, err := eng.GetStepExecutions(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, pricingflow.ErrCodeTimeout, execs[0].Error.Code)
}

func TestEngine_TimeoutWithRetry(t *testing.T) {
	eng, _ := createTestEngine(t)

	var calls int32
	step := pricingflow.NewStep("slow_then_fast", "Slow then fast", func(ctx *pricingflow.StepContext, in changeRequest) (changeRequest, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return in, ctx.Err()
		}
		return in, nil
	}, pricingflow.WithTimeout(time.Second), pricingflow.WithRetries(1), pricingflow.WithRetryDelay(10*time.Millisecond))

	run, _ := runSync(t, eng, step)

	assert.Equal(t, pricingflow.RunStatusCompleted, run.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEngine_CancelDuringBackoff(t *testing.T) {
	eng, _ := createTestEngine(t)

	var calls int32
	wf := builder.NewWorkflow("backoff_cancel", "Backoff Cancel").
		ThenStep(flakyStep(&calls, 100, pricingflow.WithRetries(1), pricingflow.WithRetryDelay(time.Hour))).
		MustBuild()

	runID, err := eng.StartWorkflow(context.Background(), wf, changeRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		execs, err := eng.GetStepExecutions(context.Background(), runID)
		return err == nil && len(execs) == 1 && execs[0].Status == pricingflow.StepStatusRetrying
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, eng.Cancel(context.Background(), runID))

	run := waitForCompletion(t, eng, runID, 5*time.Second)
	assert.Equal(t, pricingflow.RunStatusCancelled, run.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
