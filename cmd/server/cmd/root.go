package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-events/internal/config"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	// rootCmd runs serve when called without a subcommand.
	rootCmd = &cobra.Command{
		Use:   "campus-events",
		Short: "Campus event discovery backend",
		Long: `campus-events serves the REST API for browsing and managing campus events.

Subcommands:
- serve:   start the HTTP server (default)
- cleanup: delete events past the retention grace period once
- consume: append event change notifications to the activity log
- migrate: create the MySQL schema or the MongoDB indexes`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}
)

// Execute runs the root command. It is called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: LOG_FORMAT)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig() (config.Config, zerolog.Logger) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, config.NewLogger(cfg.Log)
}
