package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"catalog-platform/seeder/internal/bootstrap"
)

var schemaOnly bool

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create and seed the catalog schema once, then exit",
	Long: `Bootstrap opens one connection to the catalog database, creates the
Categories and Products tables if they do not exist, inserts the baseline
rows into tables that are empty and commits everything as one transaction.

The command prints a JSON result to stdout and exits 0 on success or 1 on
any failure. Running it again against a seeded database changes nothing.`,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().BoolVar(&schemaOnly, "schema-only", false, "create missing tables without inserting sample data")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Bootstrap.Timeout)
	defer cancel()

	result, err := app.bootstrapper.RunBootstrap(ctx)
	printResult(cmd.OutOrStdout(), result, err)

	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	if result.Status == bootstrap.StatusError {
		return errors.New("bootstrap completed with errors")
	}

	slog.InfoContext(ctx, "database initialized")
	return nil
}

// printResult writes result as indented JSON. When no result exists only the
// status and error are written.
func printResult(w io.Writer, result *bootstrap.Result, runErr error) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	var doc any = result
	if result == nil {
		m := map[string]string{"status": bootstrap.StatusError}
		if runErr != nil {
			m["error"] = runErr.Error()
		}
		doc = m
	}

	if err := enc.Encode(doc); err != nil {
		status := bootstrap.StatusError
		if result != nil {
			status = result.Status
		}
		fmt.Fprintf(w, `{"status":%q}`+"\n", status)
	}
}
