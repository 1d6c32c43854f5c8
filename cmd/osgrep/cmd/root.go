// Package cmd provides the CLI commands for osgrep.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/osgrep/osgrep/internal/logging"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the osgrep CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "osgrep",
		Short: "Local semantic code search",
		Long: `osgrep indexes a codebase with structure-aware chunking and hybrid
dense+keyword retrieval, entirely on your machine.

Run 'osgrep index' once, then 'osgrep search <query>' to query it, or
'osgrep serve' to keep it running as a local HTTP server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "write debug logs to ~/.osgrep/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
