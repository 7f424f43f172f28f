package pricing

import (
	"context"
	"fmt"
	"sync"

	"github.com/dataeng/pricingflow/internal/mage"
)

type fakeIdentity struct {
	email string
	err   error
	calls int
}

func (f *fakeIdentity) LookupUserEmail(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.email, f.err
}

type fakePipelines struct {
	mu        sync.Mutex
	submitted []mage.RunVariables
	failAt    int // 1-based submission that fails, 0 for never
	failErr   error
	emptyID   bool
	statuses  map[string]string
	statusErr map[string]error
	polled    []string
}

func (f *fakePipelines) SubmitRun(_ context.Context, vars mage.RunVariables) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitted = append(f.submitted, vars)
	n := len(f.submitted)
	if f.failAt == n {
		return "", f.failErr
	}
	if f.emptyID {
		return "", nil
	}
	return fmt.Sprintf("%d", 100+n), nil
}

func (f *fakePipelines) GetRunStatus(_ context.Context, runID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polled = append(f.polled, runID)
	if err := f.statusErr[runID]; err != nil {
		return "", err
	}
	return f.statuses[runID], nil
}

type update struct {
	channel, ts, text string
}

type fakeUpdater struct {
	updates []update
	err     error
}

func (f *fakeUpdater) UpdateMessage(_ context.Context, channelID, ts, text string) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, update{channelID, ts, text})
	return nil
}
