package searcher

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgrep/osgrep/internal/config"
	"github.com/osgrep/osgrep/internal/store"
)

// fakeEmbedder is a deterministic stand-in for the worker pool: EncodeQuery
// returns a unit vector derived from the query's length, and Rerank scores
// each doc by how many times the query substring appears in it.
type fakeEmbedder struct {
	rerankErr error
}

func (f *fakeEmbedder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, store.Dimensions)
	v[len(text)%store.Dimensions] = 1
	return v, nil
}

func (f *fakeEmbedder) Rerank(ctx context.Context, query string, docs []string) ([]float32, error) {
	if f.rerankErr != nil {
		return nil, f.rerankErr
	}
	scores := make([]float32, len(docs))
	for i, d := range docs {
		scores[i] = float32(strings.Count(d, query))
	}
	return scores, nil
}

func newTestSearcher(t *testing.T, st store.Store, embedder Embedder) *Searcher {
	t.Helper()
	cfg := config.NewConfig().Search
	return New(st, embedder, cfg, nil)
}

func TestSearchReturnsEmptyWhenStoreMissing(t *testing.T) {
	s := newTestSearcher(t, nil, &fakeEmbedder{})
	results, err := s.Search(context.Background(), "anything", 10, Filters{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchReturnsEmptyOnEmptyStore(t *testing.T) {
	st := store.NewFakeStore()
	s := newTestSearcher(t, st, &fakeEmbedder{})
	results, err := s.Search(context.Background(), "anything", 10, Filters{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRanksExactSubstringHigher(t *testing.T) {
	st := store.NewFakeStore()
	ctx := context.Background()

	require.NoError(t, st.IndexFile(ctx, "a.go", []store.Row{
		{ID: "a1", Path: "a.go", Content: "func parseRequest() error { return nil }", StartLine: 1, EndLine: 1, Vector: unitVec(1)},
	}))
	require.NoError(t, st.IndexFile(ctx, "b.go", []store.Row{
		{ID: "b1", Path: "b.go", Content: "func renderResponse() error { return nil }", StartLine: 1, EndLine: 1, Vector: unitVec(2)},
	}))

	s := newTestSearcher(t, st, &fakeEmbedder{})
	results, err := s.Search(ctx, "parseRequest", 10, Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.go", results[0].Path)
}

func TestSearchResultsAreSortedDescendingAndBoundedByLimit(t *testing.T) {
	st := store.NewFakeStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.IndexFile(ctx, fmt.Sprintf("f%d.go", i), []store.Row{
			{ID: fmt.Sprintf("id%d", i), Path: fmt.Sprintf("f%d.go", i), Content: "token content", StartLine: 1, EndLine: 1, Vector: unitVec(i)},
		}))
	}

	s := newTestSearcher(t, st, &fakeEmbedder{})
	results, err := s.Search(ctx, "token", 3, Filters{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchFallsBackToRRFWhenRerankFails(t *testing.T) {
	st := store.NewFakeStore()
	ctx := context.Background()

	require.NoError(t, st.IndexFile(ctx, "a.go", []store.Row{
		{ID: "a1", Path: "a.go", Content: "alpha content", StartLine: 1, EndLine: 1, Vector: unitVec(1)},
	}))

	s := newTestSearcher(t, st, &fakeEmbedder{rerankErr: fmt.Errorf("boom")})
	results, err := s.Search(ctx, "alpha", 10, Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestSearchRespectsPathPrefixFilter(t *testing.T) {
	st := store.NewFakeStore()
	ctx := context.Background()

	require.NoError(t, st.IndexFile(ctx, "pkg/a.go", []store.Row{
		{ID: "a1", Path: "pkg/a.go", Content: "shared token", StartLine: 1, EndLine: 1, Vector: unitVec(1)},
	}))
	require.NoError(t, st.IndexFile(ctx, "other/b.go", []store.Row{
		{ID: "b1", Path: "other/b.go", Content: "shared token", StartLine: 1, EndLine: 1, Vector: unitVec(1)},
	}))

	s := newTestSearcher(t, st, &fakeEmbedder{})
	results, err := s.Search(ctx, "shared", 10, Filters{All: []Filter{{Key: "path", Operator: "starts_with", Value: "pkg/"}}})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "pkg/a.go", r.Path)
	}
}

func unitVec(seed int) []float32 {
	v := make([]float32, store.Dimensions)
	v[seed%store.Dimensions] = 1
	return v
}
