package slackapi

import (
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
)

// VerifyRequest checks the X-Slack-Signature of a request body against the
// app's signing secret
func VerifyRequest(header http.Header, body []byte, signingSecret string) error {
	verifier, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return fmt.Errorf("slack signature headers: %w", err)
	}
	if _, err := verifier.Write(body); err != nil {
		return err
	}
	if err := verifier.Ensure(); err != nil {
		return fmt.Errorf("slack signature: %w", err)
	}
	return nil
}
