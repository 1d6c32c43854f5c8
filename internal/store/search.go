package store

import (
	"context"
	"fmt"
	"strings"
)

// vectorOverfetchFactor controls how many extra candidates VectorSearch
// pulls from the HNSW graph when a path filter is active, since the graph
// itself has no notion of the metadata columns. A flat scan of the whole
// graph would be exact but defeats the point of the index; overfetching a
// multiple of k is the same tradeoff coder/hnsw's own examples make.
const vectorOverfetchFactor = 10

// VectorSearch returns the k nearest rows to vec by cosine similarity,
// with full row content hydrated from the metadata table. When pathPrefix
// is non-empty, only rows whose Path has that prefix are returned.
func (s *SQLiteStore) VectorSearch(ctx context.Context, vec []float32, k int, pathPrefix string) ([]Row, error) {
	fetchK := k
	if pathPrefix != "" {
		fetchK = k * vectorOverfetchFactor
	}

	s.mu.RLock()
	matches, err := s.vec.search(vec, fetchK)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}

	byID, err := s.rowsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate vector search rows: %w", err)
	}

	out := make([]Row, 0, k)
	for _, m := range matches {
		r, ok := byID[m.ID]
		if !ok {
			continue
		}
		if pathPrefix != "" && !strings.HasPrefix(r.Path, pathPrefix) {
			continue
		}
		r.Distance = m.Distance
		r.Score = distanceToScore(m.Distance)
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// FtsSearch runs an FTS5 MATCH query and returns the top k rows by BM25
// score, highest-relevance first. SQLite's bm25() returns negative values
// (lower is better); this negates them so a larger Score is always better,
// matching VectorSearch's convention.
func (s *SQLiteStore) FtsSearch(ctx context.Context, text string, k int, pathPrefix string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if text == "" {
		return nil, nil
	}

	query := `
		SELECT c.id, c.path, c.hash, c.content, c.start_line, c.end_line, c.chunk_index,
		       c.is_anchor, c.context_prev, c.context_next, -bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.doc_id
		WHERE chunks_fts MATCH ?`
	args := []any{text}

	if pathPrefix != "" {
		query += ` AND c.path LIKE ? ESCAPE '\'`
		args = append(args, likePrefixPattern(pathPrefix))
	}
	query += ` ORDER BY score DESC LIMIT ?`
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var isAnchor int
		if err := rows.Scan(&r.ID, &r.Path, &r.Hash, &r.Content, &r.StartLine, &r.EndLine, &r.ChunkIndex, &isAnchor, &r.ContextPrev, &r.ContextNext, &r.Score); err != nil {
			return nil, fmt.Errorf("scan fts row: %w", err)
		}
		r.IsAnchor = isAnchor != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// likePrefixPattern builds a "<escaped-prefix>%" LIKE pattern, escaping the
// LIKE metacharacters that happen to appear in a real path (spec §9's
// injection-adjacent note applies here too: a path containing "%" or "_"
// must not widen the match). The query itself stays parameterized, so this
// only needs to escape LIKE's own wildcards, not SQL quoting.
func likePrefixPattern(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

// rowsByID hydrates full row content for a set of ids, batched to stay
// under SQLite's default host-parameter limit.
func (s *SQLiteStore) rowsByID(ctx context.Context, ids []string) (map[string]Row, error) {
	out := make(map[string]Row, len(ids))
	const batchSize = 500

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		placeholders := make([]byte, 0, len(batch)*2)
		args := make([]any, len(batch))
		for i, id := range batch {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = id
		}

		query := fmt.Sprintf(`
			SELECT id, path, hash, content, start_line, end_line, chunk_index, is_anchor, context_prev, context_next
			FROM chunks WHERE id IN (%s)`, string(placeholders))

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var r Row
			var isAnchor int
			if err := rows.Scan(&r.ID, &r.Path, &r.Hash, &r.Content, &r.StartLine, &r.EndLine, &r.ChunkIndex, &isAnchor, &r.ContextPrev, &r.ContextNext); err != nil {
				rows.Close()
				return nil, err
			}
			r.IsAnchor = isAnchor != 0
			out[r.ID] = r
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return out, nil
}

// CreateFtsIndex is idempotent: the FTS5 virtual table is created as part
// of the canonical schema at open time, so this only needs to confirm the
// table is reachable.
func (s *SQLiteStore) CreateFtsIndex(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	var n int
	return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks_fts`).Scan(&n)
}

// CreateVectorIndex is a deliberate fallback: coder/hnsw has no separate
// IVF-flat training step to attempt (unlike, say, a quantized ANN index
// that benefits from building a codebook once enough vectors exist), so
// above vectorIndexThreshold rows this simply confirms the graph already
// holds every row's vector; below it, a flat scan is cheap enough that
// there is nothing to build.
func (s *SQLiteStore) CreateVectorIndex(ctx context.Context) error {
	count, err := s.CountRows(ctx)
	if err != nil {
		return err
	}
	if count < vectorIndexThreshold {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.vec.count() == 0 && count > 0 {
		return fmt.Errorf("vector index is empty but %d rows are indexed", count)
	}
	return nil
}
