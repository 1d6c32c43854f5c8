package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osgrep/osgrep/internal/store"
)

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show index configuration and row counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndexInfo(cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func runIndexInfo(cmd *cobra.Command, path string, jsonOutput bool) error {
	root, err := resolveProjectRoot(path)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	p, err := openProject(root, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	count, err := p.store.CountRows(cmd.Context())
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	files, err := p.store.ListFiles(cmd.Context())
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"project":    root,
			"store_name": p.cfg.StoreName,
			"chunks":     count,
			"files":      len(files),
			"dimensions": store.Dimensions,
		})
	}

	fmt.Fprintf(out, "Project:    %s\n", root)
	fmt.Fprintf(out, "Store:      %s\n", p.cfg.StoreName)
	fmt.Fprintf(out, "Files:      %d\n", len(files))
	fmt.Fprintf(out, "Chunks:     %d\n", count)
	fmt.Fprintf(out, "Dimensions: %d\n", store.Dimensions)
	return nil
}
