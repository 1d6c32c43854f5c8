package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osgrep/osgrep/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Run the long-running HTTP search server",
		Long: `Runs an initial sync, then listens on the configured port for
GET /health and POST /search until interrupted (spec §4.9).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(cmd, path)
		},
	}

	return cmd
}

func runServe(cmd *cobra.Command, path string) error {
	root, err := resolveProjectRoot(path)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	p, err := openProject(root, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	srv := server.New(root, p.cfg, p.store, p.search, p.syncer, p.pool, p.logger)

	if err := writeServerInfo(root, p.cfg.Server.Port); err != nil {
		p.logger.Warn("failed to write server.json", "error", err)
	}
	defer removeServerInfo(root)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}

type serverInfo struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"startedAt"`
}

func serverInfoPath(root string) string {
	return filepath.Join(root, ".osgrep", "server.json")
}

// writeServerInfo persists the serve shell's pid/port/start time (spec §6's
// filesystem layout: <projectRoot>/.osgrep/server.json) so other tools can
// discover a running instance without probing ports.
func writeServerInfo(root string, port int) error {
	path := serverInfoPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(serverInfo{PID: os.Getpid(), Port: port, StartedAt: time.Now()})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func removeServerInfo(root string) {
	_ = os.Remove(serverInfoPath(root))
}
