package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/osgrep/osgrep/internal/syncer"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Sync the index against the current state of a project",
		Long: `Walks the project tree, chunks and embeds new or changed files, deletes
rows for files that no longer exist, and rebuilds the FTS and vector
indexes. Safe to run repeatedly: unchanged files are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd, path)
		},
	}

	cmd.AddCommand(newIndexInfoCmd())

	return cmd
}

func runIndex(cmd *cobra.Command, path string) error {
	root, err := resolveProjectRoot(path)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	p, err := openProject(root, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	out := cmd.OutOrStdout()
	// A real terminal gets a single overwritten progress line; redirected
	// output (a log file, a pipe into another tool) gets one line per
	// update instead, since "\r" only makes sense on a TTY (spec §6's CLI
	// front-end is out of scope, but osgrep still needs to know which mode
	// to render progress in).
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	opts := &syncer.Options{
		ProjectRoot: root,
		Ignore:      loadIgnoreMatcher(root),
		OnProgress: func(progress syncer.Progress) {
			if progress.Phase != syncer.PhaseIndex || progress.Total == 0 {
				return
			}
			if tty {
				fmt.Fprintf(out, "\rindexing %d/%d %s", progress.Processed, progress.Total, progress.CurrentPath)
			} else {
				fmt.Fprintf(out, "indexing %d/%d %s\n", progress.Processed, progress.Total, progress.CurrentPath)
			}
		},
	}

	report, err := p.syncer.Sync(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "scanned %d, new %d, changed %d, unchanged %d, stale %d, indexed %d, errors %d\n",
		report.Scanned, report.New, report.Changed, report.Unchanged, report.Stale, report.Indexed, report.Errors)

	return nil
}
