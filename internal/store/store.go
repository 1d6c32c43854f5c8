// Package store implements the persistent vector+text table of spec §4.5:
// one on-disk store per store-name, combining dense-vector nearest-neighbor
// search and SQLite FTS5 full-text search behind a single facade. It is
// grounded in the teacher's split HNSWStore (github.com/coder/hnsw, pure
// Go, no CGO) and SQLiteBM25Index (modernc.org/sqlite FTS5, also CGO-free),
// composed here into one Store instead of two interfaces the caller has to
// keep in sync.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/osgrep/osgrep/internal/osgreperr"
)

// Row is the on-disk representation of a chunk (spec §3).
type Row struct {
	ID          string
	Path        string
	Hash        string
	Content     string
	StartLine   int
	EndLine     int
	ChunkIndex  int
	IsAnchor    bool
	ContextPrev string
	ContextNext string
	Vector      []float32

	// VectorSearch populates Distance and Score; FtsSearch populates Score
	// only. Both are zero otherwise.
	Distance float32
	Score    float32
}

// Store is the capability set spec §9's design notes settle on:
// {listFiles, indexFile, search (vector + fts), deleteFile,
// createFtsIndex, createVectorIndex, close}. Searcher and Syncer depend
// only on this interface so tests can swap in an in-memory fake.
type Store interface {
	ListFiles(ctx context.Context) ([]string, error)
	IndexFile(ctx context.Context, path string, rows []Row) error
	DeleteFile(ctx context.Context, path string) error
	// VectorSearch and FtsSearch both accept an optional pathPrefix
	// (spec §4.7's filters.all path/starts_with translation); an empty
	// string means no filter.
	VectorSearch(ctx context.Context, vec []float32, k int, pathPrefix string) ([]Row, error)
	FtsSearch(ctx context.Context, text string, k int, pathPrefix string) ([]Row, error)
	CreateFtsIndex(ctx context.Context) error
	CreateVectorIndex(ctx context.Context) error
	CountRows(ctx context.Context) (int, error)
	Close() error
}

// Dimensions is the fixed dense-vector width every row must carry (spec §3).
const Dimensions = 384

// vectorIndexThreshold is the row count below which createVectorIndex is a
// no-op (spec §4.5): a flat scan is faster and the training step would fail.
const vectorIndexThreshold = 256

// SQLiteStore is the disk-backed Store implementation: a SQLite database
// holding the canonical row table and its FTS5 mirror, plus an in-memory
// HNSW graph persisted to a sidecar file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	vec    *vectorIndex
	logger *slog.Logger
	closed bool
}

// OpenOrCreate opens the store at dir/name.db (and dir/name.hnsw for
// vectors), creating the canonical schema if absent, per spec §4.5.
func OpenOrCreate(dir, name string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dbPath := filepath.Join(dir, name+".db")
	dsn := dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: dbPath, logger: logger.With("component", "store", "store_name", name)}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.migrateSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, osgreperr.SchemaMigrationFailed(err)
	}

	vecPath := filepath.Join(dir, name+".hnsw")
	vec, err := loadOrNewVectorIndex(vecPath, Dimensions)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	s.vec = vec

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);
	INSERT OR IGNORE INTO schema_version (version) VALUES (2);

	CREATE TABLE IF NOT EXISTS chunks (
		id           TEXT PRIMARY KEY,
		path         TEXT NOT NULL,
		hash         TEXT NOT NULL,
		content      TEXT NOT NULL,
		start_line   INTEGER NOT NULL,
		end_line     INTEGER NOT NULL,
		chunk_index  INTEGER NOT NULL,
		is_anchor    INTEGER NOT NULL DEFAULT 0,
		context_prev TEXT NOT NULL DEFAULT '',
		context_next TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// migrateSchema implements spec §4.5's one-shot migration: if an
// older database is missing context_prev/context_next, read every row,
// recreate the table with the canonical schema, and rewrite rows with
// the missing columns defaulted to "". The caller is expected to hold the
// repository lock (internal/lockmgr) for the duration of OpenOrCreate.
func (s *SQLiteStore) migrateSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(chunks)`)
	if err != nil {
		return fmt.Errorf("read table_info: %w", err)
	}
	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scan table_info: %w", err)
		}
		cols[name] = true
	}
	rows.Close()

	if cols["context_prev"] && cols["context_next"] {
		return nil
	}

	s.logger.Warn("migrating chunks table to canonical schema", "missing_context_columns", true)

	existing, err := s.allRowsRaw(ctx)
	if err != nil {
		return fmt.Errorf("read existing rows before migration: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE chunks`); err != nil {
		return fmt.Errorf("drop old chunks table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE chunks (
			id           TEXT PRIMARY KEY,
			path         TEXT NOT NULL,
			hash         TEXT NOT NULL,
			content      TEXT NOT NULL,
			start_line   INTEGER NOT NULL,
			end_line     INTEGER NOT NULL,
			chunk_index  INTEGER NOT NULL,
			is_anchor    INTEGER NOT NULL DEFAULT 0,
			context_prev TEXT NOT NULL DEFAULT '',
			context_next TEXT NOT NULL DEFAULT ''
		)`); err != nil {
		return fmt.Errorf("recreate chunks table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX idx_chunks_path ON chunks(path)`); err != nil {
		return fmt.Errorf("recreate chunks index: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, path, hash, content, start_line, end_line, chunk_index, is_anchor, context_prev, context_next)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '')`)
	if err != nil {
		return fmt.Errorf("prepare migration insert: %w", err)
	}
	defer insert.Close()

	for _, r := range existing {
		isAnchor := 0
		if r.IsAnchor {
			isAnchor = 1
		}
		if _, err := insert.ExecContext(ctx, r.ID, r.Path, r.Hash, r.Content, r.StartLine, r.EndLine, r.ChunkIndex, isAnchor); err != nil {
			return fmt.Errorf("rewrite row %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// allRowsRaw reads every row's pre-migration columns (no context_prev/next
// assumed present).
func (s *SQLiteStore) allRowsRaw(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, hash, content, start_line, end_line, chunk_index, is_anchor FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var isAnchor int
		if err := rows.Scan(&r.ID, &r.Path, &r.Hash, &r.Content, &r.StartLine, &r.EndLine, &r.ChunkIndex, &isAnchor); err != nil {
			return nil, err
		}
		r.IsAnchor = isAnchor != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close flushes the vector index to disk and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")

	var errs []error
	if err := s.vec.save(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close store: %v", errs)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
