package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataeng/pricingflow"
	"github.com/dataeng/pricingflow/engine"
	domain "github.com/dataeng/pricingflow/internal/pricing"
	"github.com/dataeng/pricingflow/internal/mage"
	"github.com/dataeng/pricingflow/store"
)

type fakeSlack struct {
	mu        sync.Mutex
	email     string
	emailErr  error
	posted    []string
	updated   []string
	updateRef []MessageRef
	ephemeral []string
}

func (f *fakeSlack) LookupUserEmail(context.Context, string) (string, error) {
	return f.email, f.emailErr
}

func (f *fakeSlack) PostMessage(_ context.Context, channelID, text string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, text)
	return channelID, "1700000000.000200", nil
}

func (f *fakeSlack) UpdateMessage(_ context.Context, channelID, ts, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, text)
	f.updateRef = append(f.updateRef, MessageRef{ChannelID: channelID, TS: ts})
	return nil
}

func (f *fakeSlack) PostEphemeral(_ context.Context, channelID, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ephemeral = append(f.ephemeral, fmt.Sprintf("%s/%s: %s", channelID, userID, text))
	return nil
}

func (f *fakeSlack) ephemerals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ephemeral...)
}

type fakeMage struct {
	mu        sync.Mutex
	submitted []mage.RunVariables
	failAt    int
	statuses  map[string]string
}

func (f *fakeMage) SubmitRun(_ context.Context, vars mage.RunVariables) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, vars)
	if len(f.submitted) == f.failAt {
		return "", &mage.APIError{StatusCode: 500, Body: "boom"}
	}
	return fmt.Sprintf("%d", len(f.submitted)), nil
}

func (f *fakeMage) GetRunStatus(_ context.Context, runID string) (string, error) {
	if s, ok := f.statuses[runID]; ok {
		return s, nil
	}
	return domain.StatusCompleted, nil
}

func validForm() domain.FormSubmission {
	return domain.FormSubmission{
		FacilityID:       "7, 42",
		LicenseTypes:     []string{"RN", "LPN"},
		MarginPercentage: "5.0",
		WeekdayDay:       "10.0",
		WeekdayNight:     "11.0",
		WeekendDay:       "12.0",
		WeekendNight:     "13.0",
	}
}

func newTestOrchestrator(t *testing.T, slack *fakeSlack, pipelines *fakeMage, opts Options, delay time.Duration) (*Orchestrator, pricingflow.WorkflowStore) {
	t.Helper()
	logger := zerolog.Nop()
	st := store.NewMemoryStore()

	deps := Dependencies{
		Poster:    slack,
		Submitter: domain.NewSubmitter(slack, pipelines, "", logger),
		Poller:    domain.NewPoller(pipelines, slack, logger),
		ChannelID: "C123",
		PollDelay: delay,
	}

	o, err := NewOrchestrator(st, deps, slack, logger, engine.DefaultEngineConfig, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o, st
}

func TestNewPricingWorkflow(t *testing.T) {
	slack := &fakeSlack{}
	logger := zerolog.Nop()

	wf, err := NewPricingWorkflow(Dependencies{
		Poster:    slack,
		Submitter: domain.NewSubmitter(slack, &fakeMage{}, "", logger),
		Poller:    domain.NewPoller(&fakeMage{}, slack, logger),
		ChannelID: "C1",
	})
	require.NoError(t, err)
	assert.Equal(t, WorkflowID, wf.ID())
	assert.Equal(t, WorkflowVersion, wf.Version())

	order, err := wf.Graph().ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{
		StepCollectInput, StepComposeMessage, StepPostMessage,
		StepSubmitRuns, StepDelay, StepPollStatus,
	}, order)

	step, err := wf.GetStep(StepDelay)
	require.NoError(t, err)
	assert.Equal(t, DefaultPollDelay+30*time.Second, step.GetConfig().Timeout())

	_, err = NewPricingWorkflow(Dependencies{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "channel id is required")
}

func TestOrchestrator_Success(t *testing.T) {
	slack := &fakeSlack{email: "ops@example.com"}
	pipelines := &fakeMage{}
	o, _ := newTestOrchestrator(t, slack, pipelines, Options{Synchronous: true}, time.Millisecond)
	ctx := context.Background()

	runID, err := o.StartWorkflow(ctx, StartRequest{UserID: "U1", Form: validForm()})
	require.NoError(t, err)

	require.Len(t, slack.posted, 1)
	assert.Equal(t, "Pricing adjustments submitted by <@U1>:\n"+
		"7: RN is pending\n7: LPN is pending\n42: RN is pending\n42: LPN is pending", slack.posted[0])

	require.Len(t, pipelines.submitted, 4)
	first := pipelines.submitted[0]
	assert.Equal(t, "000007", first.FacilityID)
	assert.Equal(t, "RN", first.License)
	assert.Equal(t, "ops@example.com", first.Email)
	assert.Equal(t, "C123", first.ChannelID)
	assert.Equal(t, "1700000000.000200", first.MessageTS)

	require.Len(t, slack.updated, 1)
	assert.Equal(t, "Pricing adjustments for 000007, 000007, 000042, 000042: RN, LPN, RN, LPN submitted by <@U1> have run successfully. ✅", slack.updated[0])
	assert.Equal(t, MessageRef{ChannelID: "C123", TS: "1700000000.000200"}, slack.updateRef[0])
	assert.Empty(t, slack.ephemerals())

	status, err := o.GetWorkflowStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, pricingflow.RunStatusCompleted, status.Status)
	assert.Equal(t, "U1", status.ResourceID)
	assert.Len(t, status.StepExecutions, 6)
	require.NotNil(t, status.Message)
	assert.Equal(t, MessageRef{ChannelID: "C123", TS: "1700000000.000200"}, *status.Message)
	require.Len(t, status.PipelineRuns, 4)
	assert.Equal(t, domain.StatusCompleted, status.PipelineRuns[3].Status)
	require.NotNil(t, status.Output)
	assert.True(t, status.Output.Succeeded)
	assert.Equal(t, domain.StatusCompleted, status.Output.Status)

	runs, err := o.ListRuns(ctx, "U1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)
	assert.Equal(t, WorkflowID, runs[0].Tags["type"])
}

func TestOrchestrator_FailedPipelineRun(t *testing.T) {
	slack := &fakeSlack{email: "ops@example.com"}
	pipelines := &fakeMage{statuses: map[string]string{"2": "failed"}}
	o, _ := newTestOrchestrator(t, slack, pipelines, Options{Synchronous: true}, time.Millisecond)

	form := validForm()
	form.FacilityID = "7"
	runID, err := o.StartWorkflow(context.Background(), StartRequest{UserID: "U1", Form: form})
	require.NoError(t, err)

	require.Len(t, slack.updated, 1)
	assert.Equal(t, "Pricing adjustments for 000007, 000007: RN, LPN submitted by <@U1> have failed. ❌", slack.updated[0])

	status, err := o.GetWorkflowStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, pricingflow.RunStatusCompleted, status.Status)
	require.NotNil(t, status.Output)
	assert.False(t, status.Output.Succeeded)
	assert.Equal(t, "failed", status.Output.Status)
}

func TestOrchestrator_NoEmail(t *testing.T) {
	slack := &fakeSlack{}
	pipelines := &fakeMage{}
	o, _ := newTestOrchestrator(t, slack, pipelines, Options{Synchronous: true}, time.Millisecond)

	runID, err := o.StartWorkflow(context.Background(), StartRequest{UserID: "U1", Form: validForm()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoEmail))
	assert.NotEmpty(t, runID)

	assert.Empty(t, pipelines.submitted)
	assert.Empty(t, slack.updated)
	assert.Equal(t, []string{
		"C123/U1: Your pricing change was not submitted: could not retrieve email for the workflow starter.",
	}, slack.ephemerals())

	status, err := o.GetWorkflowStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, pricingflow.RunStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, StepSubmitRuns, status.Error.Step)
	assert.Nil(t, status.Output)
}

func TestOrchestrator_SubmissionFailureAborts(t *testing.T) {
	slack := &fakeSlack{email: "ops@example.com"}
	pipelines := &fakeMage{failAt: 2}
	o, _ := newTestOrchestrator(t, slack, pipelines, Options{Synchronous: true}, time.Millisecond)

	_, err := o.StartWorkflow(context.Background(), StartRequest{UserID: "U1", Form: validForm()})
	require.Error(t, err)

	var pe *domain.PairError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "000007", pe.Facility)
	assert.Equal(t, "LPN", pe.License)

	assert.Len(t, pipelines.submitted, 2)
	assert.Empty(t, slack.updated)

	notices := slack.ephemerals()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "an error was encountered during facility 000007/LPN")
}

func TestOrchestrator_InvalidForm(t *testing.T) {
	for _, synchronous := range []bool{false, true} {
		t.Run(fmt.Sprintf("synchronous=%v", synchronous), func(t *testing.T) {
			slack := &fakeSlack{email: "ops@example.com"}
			pipelines := &fakeMage{}
			o, st := newTestOrchestrator(t, slack, pipelines, Options{Synchronous: synchronous}, time.Millisecond)

			form := validForm()
			form.WeekendDay = "lots"

			runID, err := o.StartWorkflow(context.Background(), StartRequest{UserID: "U1", Form: form})
			require.Error(t, err)
			assert.Empty(t, runID)
			assert.Equal(t, "must be a number", domain.FieldErrors(err)[domain.FieldWeekendDay])

			runs, err := st.ListRuns(context.Background(), pricingflow.RunFilter{ResourceID: "U1"})
			require.NoError(t, err)
			assert.Empty(t, runs)
			assert.Empty(t, slack.posted)
			assert.Empty(t, slack.ephemerals())
			assert.Empty(t, pipelines.submitted)
		})
	}
}

func TestOrchestrator_MissingUserFailsFirstStep(t *testing.T) {
	slack := &fakeSlack{email: "ops@example.com"}
	pipelines := &fakeMage{}
	o, _ := newTestOrchestrator(t, slack, pipelines, Options{Synchronous: true}, time.Millisecond)

	runID, err := o.StartWorkflow(context.Background(), StartRequest{Form: validForm()})
	require.Error(t, err)
	require.NotEmpty(t, runID)

	status, err := o.GetWorkflowStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, pricingflow.RunStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, StepCollectInput, status.Error.Step)
	assert.Equal(t, pricingflow.ErrCodeValidation, status.Error.Code)
	assert.Nil(t, status.Message)
	assert.Empty(t, status.PipelineRuns)

	assert.Empty(t, slack.posted)
	assert.Empty(t, pipelines.submitted)
	// nobody to tell
	assert.Empty(t, slack.ephemerals())
}

func TestOrchestrator_CancelDuringDelay(t *testing.T) {
	slack := &fakeSlack{email: "ops@example.com"}
	pipelines := &fakeMage{}
	o, _ := newTestOrchestrator(t, slack, pipelines, Options{}, time.Hour)
	ctx := context.Background()

	runID, err := o.StartWorkflow(ctx, StartRequest{UserID: "U1", Form: validForm()})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := o.GetWorkflowStatus(ctx, runID)
		return err == nil && len(status.PipelineRuns) == 4
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, o.CancelWorkflow(ctx, runID))

	require.Eventually(t, func() bool {
		status, err := o.GetWorkflowStatus(ctx, runID)
		return err == nil && status.Status == pricingflow.RunStatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, slack.updated)
	assert.Empty(t, slack.ephemerals())

	err = o.CancelWorkflow(ctx, runID)
	assert.ErrorContains(t, err, "cannot cancel workflow in CANCELLED state")
}

func TestOrchestrator_LimitPerUser(t *testing.T) {
	slack := &fakeSlack{email: "ops@example.com"}
	o, _ := newTestOrchestrator(t, slack, &fakeMage{}, Options{LimitPerUser: 1}, time.Hour)
	ctx := context.Background()

	runID, err := o.StartWorkflow(ctx, StartRequest{UserID: "U1", Form: validForm()})
	require.NoError(t, err)

	_, err = o.StartWorkflow(ctx, StartRequest{UserID: "U1", Form: validForm()})
	require.Error(t, err)
	assert.True(t, pricingflow.IsConcurrencyError(err))

	_, err = o.StartWorkflow(ctx, StartRequest{UserID: "U2", Form: validForm()})
	require.NoError(t, err)

	require.NoError(t, o.CancelWorkflow(ctx, runID))
}

func TestFailureText(t *testing.T) {
	assert.Equal(t,
		"Your pricing change was not submitted: could not retrieve email for the workflow starter.",
		FailureText(fmt.Errorf("step submit_runs failed: %w", domain.ErrNoEmail)))
	assert.Equal(t,
		"Your pricing change was not submitted: userId: required",
		FailureText(&pricingflow.ValidationError{Field: "userId", Message: "required"}))
	assert.Equal(t,
		"Your pricing change failed: it did not finish in time. Check the pipeline runs in Mage before resubmitting.",
		FailureText(pricingflow.NewWorkflowErrorWithStep(pricingflow.ErrCodeTimeout, "deadline", StepPollStatus)))
	assert.Equal(t,
		"Your pricing change failed: it did not finish in time. Check the pipeline runs in Mage before resubmitting.",
		FailureText(fmt.Errorf("step delay failed: %w", context.DeadlineExceeded)))
	assert.Equal(t, "Your pricing change failed: timeout", FailureText(errors.New("timeout")))
}
