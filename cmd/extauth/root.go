package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AmmannChristian/go-extauth/logging"
)

var (
	Version    = "dev"
	CommitHash = "unknown"
)

const (
	LogLevelKey   = "log.level"
	LogFormatKey  = "log.format"
	LogNoColorKey = "log.no_color"

	ConfigKey = "config"
)

var rootCmd = &cobra.Command{
	Use:   "extauth",
	Short: fmt.Sprintf("go-extauth tooling (version: %s, commit: %s)", Version, CommitHash),
	Long: `extauth loads a go-extauth strategy configuration and either verifies a
single set of credentials against it or serves a small HTTP API protected by it.

Configuration values can be overridden with EXTAUTH_* environment variables,
for example EXTAUTH_JWKS_URL or EXTAUTH_METHOD.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(
			viper.GetString(LogLevelKey),
			viper.GetString(LogFormatKey),
			viper.GetBool(LogNoColorKey),
		)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringP("config", "c", "extauth.yaml", "Path to the strategy configuration file")
	_ = viper.BindPFlag(ConfigKey, rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(LogLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", logging.FormatConsole, "Log format (console, json)")
	_ = viper.BindPFlag(LogFormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(LogNoColorKey, rootCmd.PersistentFlags().Lookup("no-color"))

	viper.SetEnvPrefix("EXTAUTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}
