package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dataeng/pricingflow/store"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config key, e.g. "store.backend"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"json", "console"}
}

// ValidStoreBackends returns the list of valid run store backends
func ValidStoreBackends() []string {
	return []string{store.BackendMemory, store.BackendDynamoDB}
}

// Validate checks the Config for invalid values and returns all validation
// errors found. Credentials are checked separately by RequireSlack and
// RequireMage since not every command needs them.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{Field: "server.addr", Value: c.Server.Addr, Message: "is required"})
	}

	errors = append(errors, c.validateMage()...)
	errors = append(errors, c.validatePricing()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateLog()...)

	return errors
}

func (c *Config) validateMage() []ValidationError {
	var errors []ValidationError

	if u, err := url.Parse(c.Mage.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "mage.base_url",
			Value:   c.Mage.BaseURL,
			Message: "must be an absolute URL",
		})
	}
	if c.Mage.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "mage.timeout",
			Value:   c.Mage.Timeout,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validatePricing() []ValidationError {
	var errors []ValidationError

	if c.Pricing.PollDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "pricing.poll_delay",
			Value:   c.Pricing.PollDelay,
			Message: "must be non-negative",
		})
	}

	// The run has to outlive the delay plus the Slack and Mage calls around it
	if c.Pricing.RunTimeout <= c.Pricing.PollDelay {
		errors = append(errors, ValidationError{
			Field:   "pricing.run_timeout",
			Value:   c.Pricing.RunTimeout,
			Message: fmt.Sprintf("must exceed pricing.poll_delay (%s)", c.Pricing.PollDelay),
		})
	}
	if c.Pricing.MaxActivePerUser < 0 {
		errors = append(errors, ValidationError{
			Field:   "pricing.max_active_per_user",
			Value:   c.Pricing.MaxActivePerUser,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStoreBackends(), c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreBackends(), ", ")),
		})
	}
	if c.Store.Backend == store.BackendDynamoDB && c.Store.TableName == "" {
		errors = append(errors, ValidationError{
			Field:   "store.table_name",
			Value:   c.Store.TableName,
			Message: "is required for the dynamodb backend",
		})
	}
	if c.Store.RunTTL != 0 && c.Store.RunTTL < time.Hour {
		errors = append(errors, ValidationError{
			Field:   "store.run_ttl",
			Value:   c.Store.RunTTL,
			Message: "must be 0 (keep forever) or at least 1h",
		})
	}

	return errors
}

func (c *Config) validateLog() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Log.Level)) {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if !slices.Contains(ValidLogFormats(), c.Log.Format) {
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Value:   c.Log.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}

// RequireSlack reports missing Slack settings
func (c *Config) RequireSlack() error {
	var errors ValidationErrors
	for field, value := range map[string]string{
		"slack.bot_token":      c.Slack.BotToken,
		"slack.signing_secret": c.Slack.SigningSecret,
		"slack.channel_id":     c.Slack.ChannelID,
	} {
		if value == "" {
			errors = append(errors, ValidationError{Field: field, Value: "", Message: "is required"})
		}
	}
	return sorted(errors)
}

// RequireMage reports missing Mage settings. Credentials may be absent when
// a secret id is configured.
func (c *Config) RequireMage() error {
	var errors ValidationErrors
	required := map[string]string{
		"mage.schedule_id":   c.Mage.ScheduleID,
		"mage.trigger_token": c.Mage.TriggerToken,
	}
	if c.Mage.SecretID == "" {
		required["mage.api_key"] = c.Mage.APIKey
		required["mage.oauth_token"] = c.Mage.OAuthToken
	}
	for field, value := range required {
		if value == "" {
			errors = append(errors, ValidationError{Field: field, Value: "", Message: "is required"})
		}
	}
	return sorted(errors)
}

func sorted(errs ValidationErrors) error {
	if len(errs) == 0 {
		return nil
	}
	slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errs
}
