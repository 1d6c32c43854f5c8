package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/osgrep/osgrep/internal/chunk"
	"github.com/osgrep/osgrep/internal/config"
	"github.com/osgrep/osgrep/internal/gitignore"
	"github.com/osgrep/osgrep/internal/searcher"
	"github.com/osgrep/osgrep/internal/store"
	"github.com/osgrep/osgrep/internal/syncer"
	"github.com/osgrep/osgrep/internal/workerpool"
)

// project bundles everything a subcommand needs once it has resolved its
// project root: layered config, the on-disk store, a worker pool, and the
// Syncer/Searcher built on top of them. Callers must call Close when done.
type project struct {
	root   string
	cfg    *config.Config
	store  *store.SQLiteStore
	pool   *workerpool.Pool
	syncer *syncer.Syncer
	search *searcher.Searcher
	logger *slog.Logger
}

func openProject(root string, logger *slog.Logger) (*project, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	home, err := config.HomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve osgrep home: %w", err)
	}

	storeDir := filepath.Join(home, "data", cfg.StoreName)
	st, err := store.OpenOrCreate(storeDir, cfg.StoreName, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	workerBinary := cfg.Worker.BinaryPath
	if workerBinary == "" {
		workerBinary = defaultWorkerBinaryPath()
	}
	workerCfg := cfg.Worker
	workerCfg.BinaryPath = workerBinary
	pool, err := workerpool.New(workerCfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("start worker pool: %w", err)
	}

	chunker := chunk.New()

	lockDir := filepath.Join(root, ".osgrep")
	metaPath := filepath.Join(home, "meta.json")
	sy := syncer.New(st, chunker, pool, cfg, logger, lockDir, metaPath)

	sc := searcher.New(st, pool, cfg.Search, logger)

	return &project{
		root:   root,
		cfg:    cfg,
		store:  st,
		pool:   pool,
		syncer: sy,
		search: sc,
		logger: logger,
	}, nil
}

func (p *project) Close() error {
	p.pool.Destroy()
	return p.store.Close()
}

// defaultWorkerBinaryPath locates the osgrep-worker binary next to the
// currently running executable, falling back to PATH lookup (spec §4.3's
// worker is a sibling binary, not a re-exec of the CLI itself).
func defaultWorkerBinaryPath() string {
	const name = "osgrep-worker"
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate
		}
	}
	if found, err := exec.LookPath(name); err == nil {
		return found
	}
	return name
}

// loadIgnoreMatcher builds a gitignore.Matcher from root's .gitignore and
// .osgrepignore files (spec §4.6 step 2: ignore-file loading is the CLI's
// job as an external collaborator; internal/gitignore only matches).
func loadIgnoreMatcher(root string) *gitignore.Matcher {
	m := gitignore.New()
	for _, name := range []string{".gitignore", ".osgrepignore"} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = m.AddFromFile(path, "")
	}
	return m
}

// resolveProjectRoot returns path's absolute form. osgrep does not walk up
// looking for a repository marker: the directory the user invokes it from
// (or names explicitly) is the project root.
func resolveProjectRoot(path string) (string, error) {
	if path == "" {
		path = "."
	}
	return filepath.Abs(path)
}
