package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataeng/pricingflow/internal/mage"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 2*time.Minute, cfg.Pricing.PollDelay)
	assert.Equal(t, mage.DefaultBaseURL, cfg.Mage.BaseURL)
	assert.Equal(t, "pricing_workflow", cfg.Slack.ShortcutCallbackID)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
slack:
  channel_id: C0123
mage:
  schedule_id: "42"
  timeout: 5s
pricing:
  poll_delay: 90s
  email_override: qa@example.com
store:
  backend: dynamodb
  table_name: pricing-runs
  run_ttl: 72h
`), 0o600))

	v := newViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "C0123", cfg.Slack.ChannelID)
	assert.Equal(t, "42", cfg.Mage.ScheduleID)
	assert.Equal(t, 5*time.Second, cfg.Mage.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Pricing.PollDelay)
	assert.Equal(t, "qa@example.com", cfg.Pricing.EmailOverride)
	assert.Equal(t, "dynamodb", cfg.Store.Backend)
	assert.Equal(t, "pricing-runs", cfg.Store.TableName)
	assert.Equal(t, 72*time.Hour, cfg.Store.RunTTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PRICING_SLACK_CHANNEL_ID", "C999")
	t.Setenv("PRICING_PRICING_POLL_DELAY", "10s")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-legacy")
	t.Setenv("MAGE_API_KEY", "legacy-key")
	t.Setenv("PRICING_MAGE_API_KEY", "prefixed-key")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, "C999", cfg.Slack.ChannelID)
	assert.Equal(t, 10*time.Second, cfg.Pricing.PollDelay)
	assert.Equal(t, "xoxb-legacy", cfg.Slack.BotToken)
	assert.Equal(t, "prefixed-key", cfg.Mage.APIKey)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "postgres"
	cfg.Log.Level = "verbose"
	cfg.Mage.BaseURL = "not a url"
	cfg.Pricing.RunTimeout = time.Minute

	errs := cfg.Validate()
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"store.backend", "log.level", "mage.base_url", "pricing.run_timeout"}, fields)

	cfg = Default()
	cfg.Store.Backend = "dynamodb"
	cfg.Store.TableName = ""
	cfg.Store.RunTTL = time.Minute
	errs = cfg.Validate()
	require.Len(t, errs, 2)
	assert.Equal(t, "store.table_name", errs[0].Field)
	assert.Equal(t, "store.run_ttl", errs[1].Field)
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	v := newViper(t)
	v.Set("log.format", "xml")

	_, err := Load(v)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "log.format: must be one of: json, console (got: xml)", err.Error())
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Empty(t, ValidationErrors(nil).Error())

	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: "", Message: "is required"},
	}
	assert.Equal(t, "2 validation errors:\n  1. a: bad (got: 1)\n  2. b: is required (got: )\n", errs.Error())
}

func TestRequireSlack(t *testing.T) {
	cfg := Default()
	err := cfg.RequireSlack()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 validation errors")
	assert.Contains(t, err.Error(), "1. slack.bot_token")

	cfg.Slack = SlackConfig{BotToken: "xoxb", SigningSecret: "s", ChannelID: "C1"}
	assert.NoError(t, cfg.RequireSlack())
}

func TestRequireMage(t *testing.T) {
	cfg := Default()
	cfg.Mage.ScheduleID = "1"
	cfg.Mage.TriggerToken = "tok"

	var verrs ValidationErrors
	require.True(t, errors.As(cfg.RequireMage(), &verrs))
	require.Len(t, verrs, 2)
	assert.Equal(t, "mage.api_key", verrs[0].Field)
	assert.Equal(t, "mage.oauth_token", verrs[1].Field)

	cfg.Mage.SecretID = "pricing/mage"
	assert.NoError(t, cfg.RequireMage())
}
