package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osgrep/osgrep/internal/searcher"
)

type searchOptions struct {
	limit  int
	path   string
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Runs the hybrid dense+keyword retrieval pipeline against the current
index and prints the ranked chunks.

Examples:
  osgrep search "retry with backoff"
  osgrep search "parseConfig" --path internal/config --limit 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVarP(&opts.path, "path", "p", "", "restrict results to paths under this prefix")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	root, err := resolveProjectRoot(".")
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	p, err := openProject(root, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	var filters searcher.Filters
	if opts.path != "" {
		filters.All = append(filters.All, searcher.Filter{Key: "path", Operator: "starts_with", Value: opts.path})
	}

	results, err := p.search.Search(cmd.Context(), query, opts.limit, filters)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"results": results})
	}

	for _, r := range results {
		fmt.Fprintf(out, "%s:%d (score %.3f)\n", r.Path, r.StartLine, r.Score)
		fmt.Fprintln(out, indent(r.Text))
		fmt.Fprintln(out)
	}
	return nil
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
