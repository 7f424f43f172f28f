package pricingflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type facilityInput struct {
	FacilityID string `json:"facility_id"`
	Rate       int    `json:"rate"`
}

type facilityOutput struct {
	Padded string `json:"padded"`
	Rate   int    `json:"rate"`
}

func padHandler(_ *StepContext, in facilityInput) (facilityOutput, error) {
	return facilityOutput{Padded: "0000" + in.FacilityID, Rate: in.Rate}, nil
}

func testStepContext() *StepContext {
	return &StepContext{
		Context: context.Background(),
		RunID:   "run-1",
		StepID:  "pad",
		Logger:  zerolog.Nop(),
	}
}

func TestNewStep(t *testing.T) {
	step := NewStep("pad", "Pad facility", padHandler)

	assert.Equal(t, "pad", step.GetID())
	assert.Equal(t, "Pad facility", step.GetName())
	assert.Empty(t, step.GetDescription())
	assert.Equal(t, DefaultExecutionConfig, step.GetConfig())
	assert.Equal(t, "facilityInput", step.InputType().Name())
	assert.Equal(t, "facilityOutput", step.OutputType().Name())

	var _ StepExecutor = step
}

func TestNewStep_WithOptions(t *testing.T) {
	step := NewStep("pad", "Pad facility", padHandler,
		WithRetries(2),
		WithTimeout(5*time.Second),
		WithBackoff(BackoffNone),
	).WithDescription("zero-pads the facility id")

	cfg := step.GetConfig()
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 5, cfg.TimeoutSeconds)
	assert.Equal(t, BackoffNone, cfg.RetryBackoff)
	assert.Equal(t, "zero-pads the facility id", step.GetDescription())
}

func TestStep_Execute(t *testing.T) {
	step := NewStep("pad", "Pad facility", padHandler)

	out, err := step.Execute(testStepContext(), []byte(`{"facility_id":"42","rate":10}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"padded":"000042","rate":10}`, string(out))
}

func TestStep_ExecuteErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := NewStep("fail", "Fail", func(*StepContext, facilityInput) (facilityOutput, error) {
		return facilityOutput{}, boom
	})

	_, err := failing.Execute(testStepContext(), []byte(`{}`))
	assert.ErrorIs(t, err, boom)

	_, err = failing.Execute(testStepContext(), []byte(`not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal input")

	unencodable := NewStep("chan", "Chan", func(*StepContext, facilityInput) (chan int, error) {
		return make(chan int), nil
	})
	_, err = unencodable.Execute(testStepContext(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal output")
}

func TestStep_ValidateInput(t *testing.T) {
	step := NewStep("pad", "Pad facility", padHandler)

	assert.NoError(t, step.ValidateInput([]byte(`{"facility_id":"1"}`)))

	err := step.ValidateInput([]byte(`{"rate":"ten"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input for step pad")
}
