package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// FakeStore is an in-memory Store used by Searcher and Syncer tests (spec
// §9's testability design note: "the Store interface must be satisfiable
// by an in-memory fake for unit tests that do not want a real SQLite
// file"). It supports the same VectorSearch/FtsSearch contract with a
// naive brute-force cosine and substring-match implementation.
type FakeStore struct {
	mu     sync.RWMutex
	rows   map[string]Row   // id -> row
	byPath map[string][]string
	closed bool
}

// NewFakeStore constructs an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		rows:   make(map[string]Row),
		byPath: make(map[string][]string),
	}
}

func (f *FakeStore) ListFiles(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	paths := make([]string, 0, len(f.byPath))
	for p := range f.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (f *FakeStore) IndexFile(ctx context.Context, path string, rows []Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range f.byPath[path] {
		delete(f.rows, id)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		f.rows[r.ID] = r
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		delete(f.byPath, path)
	} else {
		f.byPath[path] = ids
	}
	return nil
}

func (f *FakeStore) DeleteFile(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.byPath[path] {
		delete(f.rows, id)
	}
	delete(f.byPath, path)
	return nil
}

func (f *FakeStore) VectorSearch(ctx context.Context, vec []float32, k int, pathPrefix string) ([]Row, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	type scored struct {
		row   Row
		score float32
	}
	scoredRows := make([]scored, 0, len(f.rows))
	for _, r := range f.rows {
		if r.Vector == nil {
			continue
		}
		if pathPrefix != "" && !strings.HasPrefix(r.Path, pathPrefix) {
			continue
		}
		scoredRows = append(scoredRows, scored{row: r, score: cosineSimilarity(vec, r.Vector)})
	}
	sort.Slice(scoredRows, func(i, j int) bool { return scoredRows[i].score > scoredRows[j].score })
	if k > len(scoredRows) {
		k = len(scoredRows)
	}
	out := make([]Row, k)
	for i := 0; i < k; i++ {
		r := scoredRows[i].row
		r.Score = scoredRows[i].score
		r.Distance = 2 * (1 - scoredRows[i].score)
		out[i] = r
	}
	return out, nil
}

func (f *FakeStore) FtsSearch(ctx context.Context, text string, k int, pathPrefix string) ([]Row, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	needle := strings.ToLower(text)
	type scored struct {
		row   Row
		score float32
	}
	var scoredRows []scored
	for _, r := range f.rows {
		if pathPrefix != "" && !strings.HasPrefix(r.Path, pathPrefix) {
			continue
		}
		count := strings.Count(strings.ToLower(r.Content), needle)
		if count == 0 {
			continue
		}
		scoredRows = append(scoredRows, scored{row: r, score: float32(count)})
	}
	sort.Slice(scoredRows, func(i, j int) bool { return scoredRows[i].score > scoredRows[j].score })
	if k > len(scoredRows) {
		k = len(scoredRows)
	}
	out := make([]Row, k)
	for i := 0; i < k; i++ {
		r := scoredRows[i].row
		r.Score = scoredRows[i].score
		out[i] = r
	}
	return out, nil
}

func (f *FakeStore) CreateFtsIndex(ctx context.Context) error    { return nil }
func (f *FakeStore) CreateVectorIndex(ctx context.Context) error { return nil }

func (f *FakeStore) CountRows(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rows), nil
}

func (f *FakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ Store = (*FakeStore)(nil)
