package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenOrCreate(dir, "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func unitVector(seed int) []float32 {
	v := make([]float32, Dimensions)
	v[seed%Dimensions] = 1
	return v
}

func TestIndexFileThenListFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.IndexFile(ctx, "a.go", []Row{
		{ID: "a1", Path: "a.go", Hash: "h1", Content: "func Foo() {}", StartLine: 1, EndLine: 1, Vector: unitVector(1)},
	})
	require.NoError(t, err)

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, files)

	count, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexFileReplacesOldRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexFile(ctx, "a.go", []Row{
		{ID: "a1", Path: "a.go", Content: "old content", Vector: unitVector(1)},
	}))
	require.NoError(t, s.IndexFile(ctx, "a.go", []Row{
		{ID: "a2", Path: "a.go", Content: "new content", Vector: unitVector(2)},
	}))

	count, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := s.FtsSearch(ctx, "new", 5, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a2", results[0].ID)
}

func TestDeleteFileRemovesRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexFile(ctx, "a.go", []Row{
		{ID: "a1", Path: "a.go", Content: "hello", Vector: unitVector(1)},
	}))
	require.NoError(t, s.DeleteFile(ctx, "a.go"))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	count, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFtsSearchFindsSubstringMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexFile(ctx, "a.go", []Row{
		{ID: "a1", Path: "a.go", Content: "func parseRequest() error", Vector: unitVector(1)},
		{ID: "a2", Path: "a.go", Content: "func renderResponse() error", Vector: unitVector(2)},
	}))

	results, err := s.FtsSearch(ctx, "parseRequest", 5, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
}

func TestVectorSearchReturnsNearestNeighbor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexFile(ctx, "a.go", []Row{
		{ID: "a1", Path: "a.go", Content: "one", Vector: unitVector(1)},
		{ID: "a2", Path: "a.go", Content: "two", Vector: unitVector(2)},
	}))

	results, err := s.VectorSearch(ctx, unitVector(1), 1, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
}

func TestFtsAndVectorSearchRespectPathPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexFile(ctx, "pkg/a.go", []Row{
		{ID: "a1", Path: "pkg/a.go", Content: "shared token", Vector: unitVector(1)},
	}))
	require.NoError(t, s.IndexFile(ctx, "other/b.go", []Row{
		{ID: "b1", Path: "other/b.go", Content: "shared token", Vector: unitVector(1)},
	}))

	fts, err := s.FtsSearch(ctx, "shared", 10, "pkg/")
	require.NoError(t, err)
	require.Len(t, fts, 1)
	assert.Equal(t, "a1", fts[0].ID)

	vec, err := s.VectorSearch(ctx, unitVector(1), 10, "pkg/")
	require.NoError(t, err)
	require.Len(t, vec, 1)
	assert.Equal(t, "a1", vec[0].ID)
}

func TestVectorSearchEmptyStoreReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	results, err := s.VectorSearch(context.Background(), unitVector(1), 5, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCloseThenReopenPersistsData(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenOrCreate(dir, "persist", nil)
	require.NoError(t, err)

	require.NoError(t, s.IndexFile(context.Background(), "a.go", []Row{
		{ID: "a1", Path: "a.go", Content: "persisted content", Vector: unitVector(3)},
	}))
	require.NoError(t, s.Close())

	reopened, err := OpenOrCreate(dir, "persist", nil)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.CountRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := reopened.VectorSearch(context.Background(), unitVector(3), 1, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
}

func TestOpenOrCreateCreatesSidecarFiles(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t)
	_ = s

	s2, err := OpenOrCreate(dir, "sidecar", nil)
	require.NoError(t, err)
	defer s2.Close()

	assert.FileExists(t, filepath.Join(dir, "sidecar.db"))
}

func TestCreateVectorIndexBelowThresholdIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateVectorIndex(context.Background()))
}

func TestCreateFtsIndexIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateFtsIndex(ctx))
	require.NoError(t, s.CreateFtsIndex(ctx))
}
