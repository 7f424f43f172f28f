// Package secrets resolves Mage credentials from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrMalformedSecret means the secret has no string value or is not the
// expected JSON document
var ErrMalformedSecret = errors.New("secret not found or malformed")

// SecretsManagerAPI is the subset of *secretsmanager.Client used here
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

var _ SecretsManagerAPI = (*secretsmanager.Client)(nil)

// MageCredentials is the JSON layout of the Mage secret
type MageCredentials struct {
	APIKey     string `json:"api_key"`
	OAuthToken string `json:"oauth_token"`
}

// LoadMageCredentials reads and decodes the secret named secretID
func LoadMageCredentials(ctx context.Context, client SecretsManagerAPI, secretID string) (MageCredentials, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return MageCredentials{}, fmt.Errorf("failed to get secret %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return MageCredentials{}, fmt.Errorf("%s: %w", secretID, ErrMalformedSecret)
	}

	var creds MageCredentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return MageCredentials{}, fmt.Errorf("%s: %w: %w", secretID, ErrMalformedSecret, err)
	}
	if creds.APIKey == "" || creds.OAuthToken == "" {
		return MageCredentials{}, fmt.Errorf("%s: %w: api_key and oauth_token are required", secretID, ErrMalformedSecret)
	}

	return creds, nil
}
