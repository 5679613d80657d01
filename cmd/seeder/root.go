package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"catalog-platform/seeder/internal/config"
	"catalog-platform/seeder/internal/telemetry"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "seeder",
	Short: "Catalog seeder: creates and seeds the product catalog schema",
	Long: `Seeder connects to the catalog PostgreSQL database, creates the
Categories and Products tables when they are missing and inserts baseline
rows into empty tables. It can run once (bootstrap) or as an HTTP service
(server).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, err := initLogger("text", logLevel, ""); err != nil {
			return fmt.Errorf("initialising logger: %w", err)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over value in config file.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		}
		closeLog, err := initLogger(cfg.Telemetry.LogFormat, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFile)
		if err != nil {
			return fmt.Errorf("initialising logger: %w", err)
		}

		if schemaOnly {
			cfg.Bootstrap.Seed = false
		}
		if err := cfg.Validate(); err != nil {
			releaseLog(closeLog)
			return fmt.Errorf("invalid config: %w", err)
		}

		app = buildAppContext(cmd.Context(), cfg, closeLog)
		return nil
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

// Execute is the entry point called by main.
func Execute() {
	err := rootCmd.Execute()
	if app != nil {
		app.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// initLogger installs the default logger on stderr; stdout is reserved for
// the bootstrap result document.
func initLogger(format, level, logFile string) (func() error, error) {
	logger, closeFn, err := telemetry.NewLogger(os.Stderr, format, level, logFile)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeFn, nil
}

// releaseLog closes the log file, if any, and reports a failure on the
// console logger.
func releaseLog(closeLog func() error) {
	if closeLog == nil {
		return
	}
	if err := closeLog(); err != nil {
		slog.Warn("closing log file", "err", err)
	}
}
