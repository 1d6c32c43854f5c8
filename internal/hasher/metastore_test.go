package hasher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetaStoreLoadMissingIsEmpty(t *testing.T) {
	ms := New(filepath.Join(t.TempDir(), "meta.json"), nil)
	require.NoError(t, ms.Load())
	require.Equal(t, 0, ms.Len())
}

func TestMetaStoreLoadCorruptIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	ms := New(path, nil)
	require.NoError(t, ms.Load())
	require.Equal(t, 0, ms.Len())
}

func TestMetaStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")

	ms := New(path, nil)
	require.NoError(t, ms.Load())
	ms.Set("a.go", "deadbeef")
	ms.Set("b.go", "cafef00d")
	require.NoError(t, ms.Save())

	ms2 := New(path, nil)
	require.NoError(t, ms2.Load())
	h, ok := ms2.Get("a.go")
	require.True(t, ok)
	require.Equal(t, "deadbeef", h)
	require.ElementsMatch(t, []string{"a.go", "b.go"}, ms2.Paths())
}

func TestMetaStoreDelete(t *testing.T) {
	ms := New(filepath.Join(t.TempDir(), "meta.json"), nil)
	require.NoError(t, ms.Load())
	ms.Set("a.go", "deadbeef")
	ms.Delete("a.go")
	_, ok := ms.Get("a.go")
	require.False(t, ok)
}
