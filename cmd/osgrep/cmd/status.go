package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/osgrep/osgrep/internal/config"
	"github.com/osgrep/osgrep/internal/syncer"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show the outcome of the last sync, without re-running one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runStatus(cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func runStatus(cmd *cobra.Command, path string, jsonOutput bool) error {
	root, err := resolveProjectRoot(path)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	home, err := config.HomeDir()
	if err != nil {
		return fmt.Errorf("resolve osgrep home: %w", err)
	}
	metaPath := filepath.Join(home, "meta.json")

	last, ok, err := syncer.LoadLastReport(metaPath)
	if err != nil {
		return fmt.Errorf("load last sync report: %w", err)
	}

	out := cmd.OutOrStdout()
	if !ok {
		if jsonOutput {
			enc := json.NewEncoder(out)
			return enc.Encode(map[string]any{"synced": false})
		}
		fmt.Fprintln(out, "no sync has completed yet; run 'osgrep index' first")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(last)
	}

	fmt.Fprintf(out, "Project:     %s\n", root)
	fmt.Fprintf(out, "Last sync:   %s\n", last.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Scanned:     %d\n", last.Scanned)
	fmt.Fprintf(out, "New:         %d\n", last.New)
	fmt.Fprintf(out, "Changed:     %d\n", last.Changed)
	fmt.Fprintf(out, "Unchanged:   %d\n", last.Unchanged)
	fmt.Fprintf(out, "Stale:       %d\n", last.Stale)
	fmt.Fprintf(out, "Indexed:     %d\n", last.Indexed)
	fmt.Fprintf(out, "Errors:      %d\n", last.Errors)
	return nil
}
