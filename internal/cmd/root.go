// Package cmd provides CLI commands for pricing-app.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dataeng/pricingflow/internal/config"
)

// Version is set at build time with -ldflags
var Version = "dev"

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:     "pricing-app",
	Short:   "Slack pricing-change workflow",
	Version: Version,
	Long: `pricing-app collects pricing changes from a Slack form, submits one
Mage pipeline run per facility and license, and reports the outcome
back in Slack.`,
	SilenceUsage: true,
}

// Execute runs the root command and returns an exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, runStatusCmd)
}

// initConfigErr is reported by loadConfig so a broken config file fails the
// command instead of being ignored
var initConfigErr error

func initConfig() {
	initConfigErr = nil
	config.SetDefaults(v)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			initConfigErr = fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return
	}

	v.SetConfigName("pricing-app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pricing-app")

	// A missing default config file is fine
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			initConfigErr = err
		}
	}
}

func loadConfig() (*config.Config, error) {
	if initConfigErr != nil {
		return nil, initConfigErr
	}
	return config.Load(v)
}
