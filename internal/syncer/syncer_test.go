package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgrep/osgrep/internal/chunk"
	"github.com/osgrep/osgrep/internal/config"
	"github.com/osgrep/osgrep/internal/store"
)

// lineChunker returns the whole file as a single anchor chunk, which is
// enough to exercise context/hash assignment without pulling in a real
// tree-sitter parser.
type lineChunker struct{}

func (lineChunker) Chunk(ctx context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error) {
	content := string(file.Content)
	if content == "" {
		return nil, nil
	}
	return []*chunk.Chunk{
		{
			ID:         fmt.Sprintf("%s:0", file.Path),
			Path:       file.Path,
			Content:    content,
			StartLine:  1,
			EndLine:    1,
			ChunkIndex: 0,
			IsAnchor:   true,
		},
	}, nil
}

// constEmbedder returns a fixed-dimension zero vector per text, enough to
// satisfy dimension validation without a real worker process.
type constEmbedder struct{}

func (constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, store.Dimensions)
	}
	return out, nil
}

func newTestSyncer(t *testing.T, st store.Store) (*Syncer, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.NewConfig()
	metaPath := filepath.Join(t.TempDir(), "meta.json")
	lockDir := filepath.Join(t.TempDir(), "lock")
	s := New(st, lineChunker{}, constEmbedder{}, cfg, nil, lockDir, metaPath)
	return s, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestSyncIndexesNewFiles(t *testing.T) {
	st := store.NewFakeStore()
	s, root := newTestSyncer(t, st)
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package b\n")

	report, err := s.Sync(context.Background(), &Options{ProjectRoot: root})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.New)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 0, report.Errors)

	count, err := st.CountRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyncIsIdempotentOnUnchangedFiles(t *testing.T) {
	st := store.NewFakeStore()
	s, root := newTestSyncer(t, st)
	writeFile(t, root, "a.go", "package a\n")

	_, err := s.Sync(context.Background(), &Options{ProjectRoot: root})
	require.NoError(t, err)

	report, err := s.Sync(context.Background(), &Options{ProjectRoot: root})
	require.NoError(t, err)
	assert.Equal(t, 0, report.New)
	assert.Equal(t, 0, report.Changed)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 0, report.Indexed)
}

func TestSyncReindexesOnlyChangedFile(t *testing.T) {
	st := store.NewFakeStore()
	s, root := newTestSyncer(t, st)
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package b\n")

	_, err := s.Sync(context.Background(), &Options{ProjectRoot: root})
	require.NoError(t, err)

	rowsBefore, err := st.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, rowsBefore, 2)

	writeFile(t, root, "a.go", "package a changed\n")

	report, err := s.Sync(context.Background(), &Options{ProjectRoot: root})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 0, report.New)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, report.Indexed)

	paths, err := st.ListFiles(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, paths)
}

func TestSyncDeletesStaleFileRowsOnly(t *testing.T) {
	st := store.NewFakeStore()
	s, root := newTestSyncer(t, st)
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package b\n")

	_, err := s.Sync(context.Background(), &Options{ProjectRoot: root})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.go")))

	report, err := s.Sync(context.Background(), &Options{ProjectRoot: root})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stale)

	paths, err := st.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, paths)
}

func TestSyncAssignsSharedHashPerFile(t *testing.T) {
	st := store.NewFakeStore()
	s, root := newTestSyncer(t, st)
	writeFile(t, root, "a.go", "package a\n")

	_, err := s.Sync(context.Background(), &Options{ProjectRoot: root})
	require.NoError(t, err)

	rows, err := st.FtsSearch(context.Background(), "package", 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].Hash)
}
