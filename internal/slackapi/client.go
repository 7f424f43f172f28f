// Package slackapi adapts slack-go to the narrow interfaces the pricing
// workflow depends on, and builds and parses the pricing form.
package slackapi

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/dataeng/pricingflow/internal/pricing"
)

// SlackAPI is the subset of *slack.Client used here. Tests substitute a mock.
type SlackAPI interface {
	GetUserInfoContext(ctx context.Context, userID string) (*slack.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
}

var _ SlackAPI = (*slack.Client)(nil)

// Client implements the pricing package's chat interfaces on Slack
type Client struct {
	api SlackAPI
}

var (
	_ pricing.IdentityResolver  = (*Client)(nil)
	_ pricing.MessagePoster     = (*Client)(nil)
	_ pricing.MessageUpdater    = (*Client)(nil)
	_ pricing.EphemeralNotifier = (*Client)(nil)
	_ pricing.FormOpener        = (*Client)(nil)
)

// New wraps a bot-token client. Extra options, e.g. slack.OptionAPIURL, are
// passed through.
func New(botToken string, opts ...slack.Option) *Client {
	return NewWithAPI(slack.New(botToken, opts...))
}

func NewWithAPI(api SlackAPI) *Client {
	return &Client{api: api}
}

// LookupUserEmail needs the users:read.email scope. A user without a visible
// email yields "" and no error.
func (c *Client) LookupUserEmail(ctx context.Context, userID string) (string, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("users.info %s: %w", userID, err)
	}
	if user == nil {
		return "", nil
	}
	return user.Profile.Email, nil
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string) (string, string, error) {
	channel, ts, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", "", fmt.Errorf("chat.postMessage to %s: %w", channelID, err)
	}
	return channel, ts, nil
}

func (c *Client) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("chat.update %s/%s: %w", channelID, ts, err)
	}
	return nil
}

func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	if _, err := c.api.PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("chat.postEphemeral to %s: %w", userID, err)
	}
	return nil
}

// OpenForm opens the pricing modal
func (c *Client) OpenForm(ctx context.Context, triggerID string) error {
	if _, err := c.api.OpenViewContext(ctx, triggerID, PricingModal()); err != nil {
		return fmt.Errorf("views.open: %w", err)
	}
	return nil
}
