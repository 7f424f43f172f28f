package pricing

import (
	"context"

	"github.com/dataeng/pricingflow/internal/mage"
)

// IdentityResolver looks up a chat user's email address
type IdentityResolver interface {
	LookupUserEmail(ctx context.Context, userID string) (string, error)
}

// MessagePoster posts a message and returns where it landed
type MessagePoster interface {
	PostMessage(ctx context.Context, channelID, text string) (channel, ts string, err error)
}

// MessageUpdater replaces the text of a posted message
type MessageUpdater interface {
	UpdateMessage(ctx context.Context, channelID, ts, text string) error
}

// EphemeralNotifier shows a message to one user only
type EphemeralNotifier interface {
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
}

// FormOpener shows the pricing form in response to a trigger
type FormOpener interface {
	OpenForm(ctx context.Context, triggerID string) error
}

// PipelineAPI triggers and inspects pipeline runs. *mage.Client satisfies it.
type PipelineAPI interface {
	SubmitRun(ctx context.Context, vars mage.RunVariables) (string, error)
	GetRunStatus(ctx context.Context, runID string) (string, error)
}

var _ PipelineAPI = (*mage.Client)(nil)
