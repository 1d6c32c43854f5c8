package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/osgrep/osgrep/internal/chunk"
	"github.com/osgrep/osgrep/internal/config"
	"github.com/osgrep/osgrep/internal/hasher"
	"github.com/osgrep/osgrep/internal/lockmgr"
	"github.com/osgrep/osgrep/internal/store"
)

// Embedder is the narrow capability the Syncer needs from the worker pool:
// batch document embedding. Query encoding and reranking belong to the
// Searcher's view of the pool (internal/searcher.Embedder).
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker is the capability the Syncer needs from internal/chunk, narrowed
// so tests can substitute a fake without a real tree-sitter parser.
type Chunker interface {
	Chunk(ctx context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error)
}

// Syncer drives one project's indexing pipeline end to end (spec §4.6).
type Syncer struct {
	store    store.Store
	chunker  Chunker
	embedder Embedder
	cfg      *config.Config
	logger   *slog.Logger

	lockDir  string
	metaPath string
}

// New builds a Syncer. lockDir is where the repository lock file lives
// (spec §4.8, typically <project>/.osgrep); metaPath is the JSON file
// backing the content-hash meta-store (spec §4.4, typically
// ~/.osgrep/meta.json).
func New(st store.Store, chunker Chunker, embedder Embedder, cfg *config.Config, logger *slog.Logger, lockDir, metaPath string) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:    st,
		chunker:  chunker,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With("component", "syncer"),
		lockDir:  lockDir,
		metaPath: metaPath,
	}
}

// Sync runs one full incremental sync: enumerate, diff, delete stale,
// index new/changed files, rebuild the derived indexes, and persist the
// meta-store (spec §4.6). It holds the repository lock for its duration
// (spec §4.8): a concurrent Sync on the same project fails with
// osgreperr's lock-held error rather than blocking.
func (s *Syncer) Sync(ctx context.Context, opts *Options) (*Report, error) {
	lock, err := lockmgr.Acquire(s.lockDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			s.logger.Warn("failed to release repository lock", "error", releaseErr)
		}
	}()

	report := &Report{}

	absRoot, err := filepath.Abs(opts.ProjectRoot)
	if err != nil {
		absRoot = opts.ProjectRoot
	}

	excludePatterns := s.cfg.Paths.Exclude
	candidates, err := enumerate(opts.ProjectRoot, opts.Ignore, excludePatterns)
	if err != nil {
		return nil, fmt.Errorf("enumerate project tree: %w", err)
	}
	report.Scanned = len(candidates)
	opts.report(Progress{Phase: PhaseEnumerate, Processed: len(candidates), Total: len(candidates)})

	meta := hasher.New(s.metaPath, s.logger)
	if err := meta.Load(); err != nil {
		s.logger.Warn("meta-store failed to load, starting empty", "error", err)
	}

	d := diff(opts.ProjectRoot, candidates, meta)
	report.New = d.newCount
	report.Changed = d.changedCount
	report.Unchanged = d.unchangedCount
	report.Errors += d.readErrors

	for _, abs := range d.staleAbsPaths {
		rel, relErr := filepath.Rel(absRoot, abs)
		if relErr != nil {
			s.logger.Warn("failed to compute relative path for stale file", "path", abs, "error", relErr)
			continue
		}
		rel = filepath.ToSlash(rel)
		if err := s.store.DeleteFile(ctx, rel); err != nil {
			s.logger.Warn("failed to delete stale file rows", "path", rel, "error", err)
			report.Errors++
			continue
		}
		meta.Delete(abs)
		report.Stale++
	}

	s.indexFiles(ctx, d.toIndex, opts, report, meta)

	opts.report(Progress{Phase: PhaseFinalize})

	if err := s.store.CreateFtsIndex(ctx); err != nil {
		return report, fmt.Errorf("create fts index: %w", err)
	}
	if err := s.store.CreateVectorIndex(ctx); err != nil {
		return report, fmt.Errorf("create vector index: %w", err)
	}

	if err := meta.Save(); err != nil {
		return report, fmt.Errorf("persist meta-store: %w", err)
	}

	if err := saveReport(s.metaPath, absRoot, *report, time.Now()); err != nil {
		s.logger.Warn("failed to persist last-run sync report", "error", err)
	}

	return report, nil
}
