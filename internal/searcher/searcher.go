package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/osgrep/osgrep/internal/config"
	"github.com/osgrep/osgrep/internal/store"
)

// Embedder is the subset of workerpool.Pool the Searcher needs to encode a
// query and rerank candidates. Modeled as an interface, per spec §9's
// design note, so tests can swap in a fake without spawning real worker
// subprocesses.
type Embedder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
	Rerank(ctx context.Context, query string, docs []string) ([]float32, error)
}

// Searcher implements the hybrid retrieval pipeline of spec §4.7.
type Searcher struct {
	store    store.Store
	embedder Embedder
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// New builds a Searcher. st may be nil, representing "no store created yet
// for this repository" (spec §4.5's StoreMissing case): Search then returns
// an empty result set rather than an error.
func New(st store.Store, embedder Embedder, cfg config.SearchConfig, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{store: st, embedder: embedder, cfg: cfg, logger: logger.With("component", "searcher")}
}

// Search runs the full pipeline: encode, fan out, fuse, rerank the head,
// boost, sort, truncate to limit.
func (s *Searcher) Search(ctx context.Context, query string, limit int, filters Filters) ([]Result, error) {
	if s.store == nil {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit && s.cfg.MaxLimit > 0 {
		limit = s.cfg.MaxLimit
	}

	prefix := pathPrefix(filters)

	qVec, err := s.embedder.EncodeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	var vecRows, ftsRows []store.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.store.VectorSearch(gctx, qVec, s.cfg.CandidateLimit, prefix)
		if err != nil {
			return fmt.Errorf("vector candidate fan-out: %w", err)
		}
		vecRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.FtsSearch(gctx, query, s.cfg.CandidateLimit, prefix)
		if err != nil {
			return fmt.Errorf("fts candidate fan-out: %w", err)
		}
		ftsRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuseRRF(s.cfg.RRFConstant, vecRows, ftsRows)
	if len(fused) == 0 {
		return []Result{}, nil
	}
	max := maxRRF(fused)

	headSize := s.cfg.RerankHead
	if headSize <= 0 || headSize > len(fused) {
		headSize = len(fused)
	}
	head := fused[:headSize]

	scores := make([]float64, len(fused))
	wr := s.rerankWeight(query)

	rerankScores, rerankErr := s.rerankHead(ctx, query, head)
	if rerankErr != nil {
		s.logger.Warn("reranker unavailable, falling back to pure RRF ordering", "error", rerankErr)
	}

	for i, c := range fused {
		norm := rrfNorm(c, max)
		var base float64
		if rerankErr == nil && i < len(head) {
			base = wr*float64(rerankScores[i]) + (1-wr)*norm
		} else {
			base = norm
		}
		scores[i] = base + heuristicBoost(query, c.row)
	}

	order := make([]int, len(fused))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	if limit > len(order) {
		limit = len(order)
	}

	out := make([]Result, limit)
	for i := 0; i < limit; i++ {
		idx := order[i]
		row := fused[idx].row
		out[i] = Result{
			Path:      row.Path,
			StartLine: row.StartLine,
			NumLines:  row.EndLine - row.StartLine + 1,
			Text:      row.ContextPrev + row.Content + row.ContextNext,
			Score:     scores[idx],
			IsAnchor:  row.IsAnchor,
		}
	}
	return out, nil
}

// rerankHead reranks the head's content via the worker pool. On success it
// returns one score per head entry. On failure, per spec §4.7's rerank
// fallback, the caller is expected to fall back to pure RRF + boosts, so
// the error is returned rather than swallowed.
func (s *Searcher) rerankHead(ctx context.Context, query string, head []fusedCandidate) ([]float32, error) {
	docs := make([]string, len(head))
	for i, c := range head {
		docs[i] = c.row.Content
	}
	scores, err := s.embedder.Rerank(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(docs) {
		return nil, fmt.Errorf("reranker returned %d scores for %d docs", len(scores), len(docs))
	}
	return scores, nil
}

// rerankWeight picks w_r per spec §4.7 step 4.
func (s *Searcher) rerankWeight(query string) float64 {
	if isCodeLike(query) {
		return s.cfg.RerankWeightCode
	}
	return s.cfg.RerankWeightProse
}
