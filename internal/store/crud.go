package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ListFiles returns every distinct path with at least one indexed row.
func (s *SQLiteStore) ListFiles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT path FROM chunks ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IndexFile replaces every row for path with rows, atomically from the
// caller's perspective: old rows for path are deleted, new rows (and their
// vectors and FTS entries) are inserted, all inside one transaction for the
// metadata table. The vector index has its own persistence and is updated
// alongside (spec §4.5: "deletion and insertion for one file's new rows is
// a single logical step").
func (s *SQLiteStore) IndexFile(ctx context.Context, path string, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	oldIDs, err := idsForPath(ctx, tx, path)
	if err != nil {
		return fmt.Errorf("read existing ids for %s: %w", path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete old rows for %s: %w", path, err)
	}
	if err := deleteFtsRows(ctx, tx, oldIDs); err != nil {
		return fmt.Errorf("delete old fts rows for %s: %w", path, err)
	}

	insertChunk, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, path, hash, content, start_line, end_line, chunk_index, is_anchor, context_prev, context_next)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer insertChunk.Close()

	insertFts, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fts insert: %w", err)
	}
	defer insertFts.Close()

	for _, r := range rows {
		isAnchor := 0
		if r.IsAnchor {
			isAnchor = 1
		}
		if _, err := insertChunk.ExecContext(ctx, r.ID, r.Path, r.Hash, r.Content, r.StartLine, r.EndLine, r.ChunkIndex, isAnchor, r.ContextPrev, r.ContextNext); err != nil {
			return fmt.Errorf("insert row %s: %w", r.ID, err)
		}
		if _, err := insertFts.ExecContext(ctx, r.ID, r.Content); err != nil {
			return fmt.Errorf("insert fts row %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index transaction: %w", err)
	}

	for _, id := range oldIDs {
		s.vec.delete(id)
	}
	for _, r := range rows {
		if r.Vector == nil {
			continue
		}
		if err := s.vec.add(r.ID, r.Vector); err != nil {
			return fmt.Errorf("add vector for %s: %w", r.ID, err)
		}
	}

	return nil
}

// DeleteFile removes every row for path, using a parameterized query
// rather than string interpolation (spec §9's explicit SQL-injection
// mitigation note) since path comes directly from the filesystem walk and
// can contain arbitrary characters.
func (s *SQLiteStore) DeleteFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := idsForPath(ctx, tx, path)
	if err != nil {
		return fmt.Errorf("read ids for %s: %w", path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete rows for %s: %w", path, err)
	}
	if err := deleteFtsRows(ctx, tx, ids); err != nil {
		return fmt.Errorf("delete fts rows for %s: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete transaction: %w", err)
	}

	for _, id := range ids {
		s.vec.delete(id)
	}
	return nil
}

// CountRows returns the total number of indexed rows, used for the
// createVectorIndex threshold decision and status reporting.
func (s *SQLiteStore) CountRows(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func idsForPath(ctx context.Context, tx *sql.Tx, path string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// deleteFtsRows removes rows from the FTS5 mirror by doc_id, using a
// parameterized IN clause rather than string-built SQL (spec §9's
// SQL-injection mitigation note) even though ids are hex digests here.
func deleteFtsRows(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM chunks_fts WHERE doc_id IN (%s)`, string(placeholders))
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
