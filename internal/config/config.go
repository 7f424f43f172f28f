// Package config loads pricing-app settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dataeng/pricingflow/internal/mage"
	"github.com/dataeng/pricingflow/store"
)

// EnvPrefix prefixes every environment override, e.g. PRICING_SLACK_CHANNEL_ID
const EnvPrefix = "PRICING"

// Config represents the complete pricing-app configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Mage    MageConfig    `mapstructure:"mage"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Store   StoreConfig   `mapstructure:"store"`
	AWS     AWSConfig     `mapstructure:"aws"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	// Addr is the listen address, e.g. ":3000"
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SlackConfig holds bot credentials and where results are posted
type SlackConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	SigningSecret string `mapstructure:"signing_secret"`
	// ChannelID receives the pending and result messages
	ChannelID string `mapstructure:"channel_id"`
	// ShortcutCallbackID identifies the shortcut that opens the form
	ShortcutCallbackID string `mapstructure:"shortcut_callback_id"`
}

// MageConfig locates the pricing pipeline trigger. APIKey and OAuthToken
// may instead come from the Secrets Manager secret named by SecretID.
type MageConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ScheduleID   string        `mapstructure:"schedule_id"`
	TriggerToken string        `mapstructure:"trigger_token"`
	APIKey       string        `mapstructure:"api_key"`
	OAuthToken   string        `mapstructure:"oauth_token"`
	SecretID     string        `mapstructure:"secret_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type PricingConfig struct {
	// PollDelay is the wait between submission and the status check
	PollDelay time.Duration `mapstructure:"poll_delay"`
	// EmailOverride, when set, is sent to the pipeline instead of the
	// submitter's address
	EmailOverride string `mapstructure:"email_override"`
	// RunTimeout bounds a whole workflow run, delay included
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	// MaxActivePerUser limits concurrent runs per Slack user (0 = unlimited)
	MaxActivePerUser int `mapstructure:"max_active_per_user"`
}

type StoreConfig struct {
	// Backend is "memory" or "dynamodb"
	Backend   string        `mapstructure:"backend"`
	TableName string        `mapstructure:"table_name"`
	RunTTL    time.Duration `mapstructure:"run_ttl"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is "json" or "console"
	Format string `mapstructure:"format"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ShutdownTimeout: 30 * time.Second,
		},
		Slack: SlackConfig{
			ShortcutCallbackID: "pricing_workflow",
		},
		Mage: MageConfig{
			BaseURL: mage.DefaultBaseURL,
			Timeout: mage.DefaultTimeout,
		},
		Pricing: PricingConfig{
			PollDelay:  2 * time.Minute,
			RunTimeout: 30 * time.Minute,
		},
		Store: StoreConfig{
			Backend:   store.BackendMemory,
			TableName: "pricing-workflows",
			RunTTL:    30 * 24 * time.Hour,
		},
		AWS: AWSConfig{
			Region: "us-west-2",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// legacyEnv maps keys to the environment names the original deployment used
var legacyEnv = map[string]string{
	"mage.api_key":         "MAGE_API_KEY",
	"mage.oauth_token":     "MAGE_OAUTH_TOKEN",
	"slack.bot_token":      "SLACK_BOT_TOKEN",
	"slack.signing_secret": "SLACK_SIGNING_SECRET",
}

// SetDefaults registers defaults and environment bindings on v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)

	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.signing_secret", "")
	v.SetDefault("slack.channel_id", "")
	v.SetDefault("slack.shortcut_callback_id", defaults.Slack.ShortcutCallbackID)

	v.SetDefault("mage.base_url", defaults.Mage.BaseURL)
	v.SetDefault("mage.schedule_id", "")
	v.SetDefault("mage.trigger_token", "")
	v.SetDefault("mage.api_key", "")
	v.SetDefault("mage.oauth_token", "")
	v.SetDefault("mage.secret_id", "")
	v.SetDefault("mage.timeout", defaults.Mage.Timeout)

	v.SetDefault("pricing.poll_delay", defaults.Pricing.PollDelay)
	v.SetDefault("pricing.email_override", "")
	v.SetDefault("pricing.run_timeout", defaults.Pricing.RunTimeout)
	v.SetDefault("pricing.max_active_per_user", defaults.Pricing.MaxActivePerUser)

	v.SetDefault("store.backend", defaults.Store.Backend)
	v.SetDefault("store.table_name", defaults.Store.TableName)
	v.SetDefault("store.run_ttl", defaults.Store.RunTTL)

	v.SetDefault("aws.region", defaults.AWS.Region)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		// BindEnv takes the first variable that is set
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}
