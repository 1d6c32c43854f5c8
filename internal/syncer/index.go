package syncer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/osgrep/osgrep/internal/chunk"
	"github.com/osgrep/osgrep/internal/hasher"
	"github.com/osgrep/osgrep/internal/osgreperr"
	"github.com/osgrep/osgrep/internal/store"
)

// assignContext fills ContextPrev/ContextNext from the immediately
// adjacent chunks in chunks' stored order (spec §3, §8: "context_prev of
// chunk i equals the formatted text of chunk i-1, or empty for the
// first"). The anchor occupies index 0 in this module's convention, so it
// participates in the same chain as a body chunk's left neighbor.
func assignContext(chunks []*chunk.Chunk) {
	for i, c := range chunks {
		if i > 0 {
			c.ContextPrev = chunks[i-1].Content
		}
		if i < len(chunks)-1 {
			c.ContextNext = chunks[i+1].Content
		}
	}
}

// indexOneFile chunks, embeds, and writes one file's rows. A returned error
// means the whole file is marked failed (spec §7: per-file errors are
// contained, the caller logs and continues); nothing is written for it.
func (s *Syncer) indexOneFile(ctx context.Context, cf candidateFile) error {
	chunks, err := s.chunker.Chunk(ctx, &chunk.FileInput{Path: cf.relPath, Content: cf.content})
	if err != nil {
		return err
	}
	for _, c := range chunks {
		c.Hash = cf.digest
	}
	assignContext(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	batchSize := s.cfg.Worker.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 12
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchVecs, err := s.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("embed batch for %s: %w", cf.relPath, err)
		}
		vectors = append(vectors, batchVecs...)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks in %s", len(vectors), len(chunks), cf.relPath)
	}

	rows := make([]store.Row, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != store.Dimensions {
			return osgreperr.DimensionMismatch(store.Dimensions, len(vectors[i]))
		}
		rows[i] = store.Row{
			ID:          c.ID,
			Path:        c.Path,
			Hash:        c.Hash,
			Content:     c.Content,
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			ChunkIndex:  c.ChunkIndex,
			IsAnchor:    c.IsAnchor,
			ContextPrev: c.ContextPrev,
			ContextNext: c.ContextNext,
			Vector:      vectors[i],
		}
	}

	return s.store.IndexFile(ctx, cf.relPath, rows)
}

// indexFiles runs indexOneFile over toIndex under a bounded-concurrency
// pipeline (spec §4.6 step 6: P ≈ 2×workers in flight). Cancellation is
// cooperative: once ctx is done, no further files are scheduled, but
// already-running calls are awaited to completion rather than killed
// (spec §5).
func (s *Syncer) indexFiles(ctx context.Context, toIndex []candidateFile, opts *Options, report *Report, meta *hasher.MetaStore) {
	concurrency := s.cfg.Worker.Count * 2
	if concurrency < 1 {
		concurrency = 2
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	var mu sync.Mutex
	var wg sync.WaitGroup
	processed := 0
	total := len(toIndex)

	for _, cf := range toIndex {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(cf candidateFile) {
			defer wg.Done()
			defer sem.Release(1)

			// Detached from cancellation so a file already in flight is
			// embedded and written in full.
			err := s.indexOneFile(context.WithoutCancel(ctx), cf)

			mu.Lock()
			processed++
			if err != nil {
				s.logger.Warn("file failed to index, skipping", "path", cf.relPath, "error", err)
				report.Errors++
			} else {
				report.Indexed++
				meta.Set(cf.absPath, cf.digest)
			}
			opts.report(Progress{Phase: PhaseIndex, Processed: processed, Total: total, CurrentPath: cf.relPath})
			mu.Unlock()
		}(cf)
	}

	wg.Wait()
}
