package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeStoreIndexAndListFiles(t *testing.T) {
	f := NewFakeStore()
	ctx := context.Background()

	require.NoError(t, f.IndexFile(ctx, "a.go", []Row{
		{ID: "a1", Path: "a.go", Content: "hello world", Vector: unitVector(1)},
	}))

	files, err := f.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, files)
}

func TestFakeStoreDeleteFile(t *testing.T) {
	f := NewFakeStore()
	ctx := context.Background()

	require.NoError(t, f.IndexFile(ctx, "a.go", []Row{{ID: "a1", Path: "a.go", Content: "x"}}))
	require.NoError(t, f.DeleteFile(ctx, "a.go"))

	count, err := f.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFakeStoreFtsSearchSubstring(t *testing.T) {
	f := NewFakeStore()
	ctx := context.Background()

	require.NoError(t, f.IndexFile(ctx, "a.go", []Row{
		{ID: "a1", Path: "a.go", Content: "func parseRequest()"},
		{ID: "a2", Path: "a.go", Content: "func renderResponse()"},
	}))

	results, err := f.FtsSearch(ctx, "parseRequest", 5, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
}

func TestFakeStoreVectorSearchRanksByCosine(t *testing.T) {
	f := NewFakeStore()
	ctx := context.Background()

	require.NoError(t, f.IndexFile(ctx, "a.go", []Row{
		{ID: "a1", Path: "a.go", Vector: unitVector(1)},
		{ID: "a2", Path: "a.go", Vector: unitVector(2)},
	}))

	results, err := f.VectorSearch(ctx, unitVector(1), 1, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
}

func TestFakeStorePathPrefixFilter(t *testing.T) {
	f := NewFakeStore()
	ctx := context.Background()

	require.NoError(t, f.IndexFile(ctx, "pkg/a.go", []Row{
		{ID: "a1", Path: "pkg/a.go", Content: "token match", Vector: unitVector(1)},
	}))
	require.NoError(t, f.IndexFile(ctx, "other/b.go", []Row{
		{ID: "b1", Path: "other/b.go", Content: "token match", Vector: unitVector(1)},
	}))

	fts, err := f.FtsSearch(ctx, "token", 10, "pkg/")
	require.NoError(t, err)
	require.Len(t, fts, 1)
	assert.Equal(t, "a1", fts[0].ID)

	vec, err := f.VectorSearch(ctx, unitVector(1), 10, "pkg/")
	require.NoError(t, err)
	require.Len(t, vec, 1)
	assert.Equal(t, "a1", vec[0].ID)
}
