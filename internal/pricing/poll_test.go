package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollRequest(runs ...PipelineRun) PollRequest {
	return PollRequest{UserID: "U123", Runs: runs, ChannelID: "C1", MessageTS: "1.1"}
}

func TestPoller_Success(t *testing.T) {
	pipelines := &fakePipelines{statuses: map[string]string{"101": "completed", "102": "completed"}}
	updater := &fakeUpdater{}
	p := NewPoller(pipelines, updater, zerolog.Nop())

	result, err := p.Poll(context.Background(), pollRequest(
		PipelineRun{Facility: "000001", License: "RN", RunID: "101"},
		PipelineRun{Facility: "000002", License: "RN", RunID: "102"},
	))
	require.NoError(t, err)

	assert.True(t, result.Succeeded)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, []string{"101", "102"}, pipelines.polled)
	assert.Equal(t, "completed", result.Runs[1].Status)

	require.Len(t, updater.updates, 1)
	assert.Equal(t, update{
		channel: "C1",
		ts:      "1.1",
		text:    "Pricing adjustments for 000001, 000002: RN, RN submitted by <@U123> have run successfully. ✅",
	}, updater.updates[0])
}

func TestPoller_Failure(t *testing.T) {
	pipelines := &fakePipelines{statuses: map[string]string{"1": "completed", "2": "failed"}}
	updater := &fakeUpdater{}
	p := NewPoller(pipelines, updater, zerolog.Nop())

	result, err := p.Poll(context.Background(), pollRequest(
		PipelineRun{Facility: "000001", License: "RN", RunID: "1"},
		PipelineRun{Facility: "000001", License: "CNA", RunID: "2"},
	))
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Equal(t, "Pricing adjustments for 000001, 000001: RN, CNA submitted by <@U123> have failed. ❌", updater.updates[0].text)
}

func TestPoller_StillRunningCountsAsFailure(t *testing.T) {
	pipelines := &fakePipelines{statuses: map[string]string{"1": "running"}}
	updater := &fakeUpdater{}
	p := NewPoller(pipelines, updater, zerolog.Nop())

	result, err := p.Poll(context.Background(), pollRequest(PipelineRun{Facility: "000001", License: "RN", RunID: "1"}))
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Contains(t, updater.updates[0].text, "have failed")
}

func TestPoller_StatusErrorAbortsWithoutUpdate(t *testing.T) {
	pipelines := &fakePipelines{
		statuses:  map[string]string{"1": "completed", "3": "completed"},
		statusErr: map[string]error{"2": errors.New("503")},
	}
	updater := &fakeUpdater{}
	p := NewPoller(pipelines, updater, zerolog.Nop())

	_, err := p.Poll(context.Background(), pollRequest(
		PipelineRun{Facility: "000001", License: "RN", RunID: "1"},
		PipelineRun{Facility: "000002", License: "RN", RunID: "2"},
		PipelineRun{Facility: "000003", License: "RN", RunID: "3"},
	))
	require.Error(t, err)

	var pairErr *PairError
	require.ErrorAs(t, err, &pairErr)
	assert.Equal(t, "000002", pairErr.Facility)
	assert.Equal(t, []string{"1", "2"}, pipelines.polled)
	assert.Empty(t, updater.updates)
}

func TestPoller_NoRuns(t *testing.T) {
	updater := &fakeUpdater{}
	p := NewPoller(&fakePipelines{}, updater, zerolog.Nop())

	_, err := p.Poll(context.Background(), pollRequest())
	assert.ErrorIs(t, err, ErrNoRuns)
	assert.Empty(t, updater.updates)
}

func TestPoller_UpdateError(t *testing.T) {
	updater := &fakeUpdater{err: errors.New("message_not_found")}
	p := NewPoller(&fakePipelines{statuses: map[string]string{"1": "completed"}}, updater, zerolog.Nop())

	_, err := p.Poll(context.Background(), pollRequest(PipelineRun{Facility: "000001", License: "RN", RunID: "1"}))
	assert.ErrorContains(t, err, "message_not_found")
}

func TestPoller_DoesNotMutateInput(t *testing.T) {
	p := NewPoller(&fakePipelines{statuses: map[string]string{"1": "completed"}}, &fakeUpdater{}, zerolog.Nop())
	in := []PipelineRun{{Facility: "000001", License: "RN", RunID: "1"}}

	_, err := p.Poll(context.Background(), pollRequest(in...))
	require.NoError(t, err)
	assert.Empty(t, in[0].Status)
}
