package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgrep/osgrep/internal/osgreperr"
)

func TestChunkerGoFileProducesAnchorAndBodyChunks(t *testing.T) {
	src := `package greet

import "fmt"

// Hello prints a greeting.
func Hello(name string) {
	fmt.Printf("hello %s\n", name)
}

func Bye(name string) {
	fmt.Printf("bye %s\n", name)
}
`
	c := New()
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "greet.go", Content: []byte(src), Language: "go"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	assert.True(t, chunks[0].IsAnchor)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[0].StartLine)

	for i, ch := range chunks[1:] {
		assert.False(t, ch.IsAnchor)
		assert.Equal(t, i+1, ch.ChunkIndex)
	}

	var helloChunk *Chunk
	for _, ch := range chunks[1:] {
		if strings.Contains(ch.Content, "func Hello") {
			helloChunk = ch
		}
	}
	require.NotNil(t, helloChunk)
	assert.Contains(t, helloChunk.DocComment, "Hello prints a greeting")
}

func TestChunkerAssignsDistinctIDs(t *testing.T) {
	c := New()
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{
		Path:     "a.go",
		Content:  []byte("package a\n\nfunc F() {}\n"),
		Language: "go",
	})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, ch := range chunks {
		assert.False(t, seen[ch.ID], "duplicate chunk id %s", ch.ID)
		seen[ch.ID] = true
	}
}

func TestChunkerUnsupportedExtensionFallsBackToParagraphs(t *testing.T) {
	c := New()
	defer c.Close()

	content := "first paragraph line one\nfirst paragraph line two\n\nsecond paragraph\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "notes.txt", Content: []byte(content)})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3) // anchor + 2 paragraphs

	assert.True(t, chunks[0].IsAnchor)
	assert.Contains(t, chunks[1].Content, "first paragraph")
	assert.Contains(t, chunks[2].Content, "second paragraph")
}

func TestChunkerInvalidUTF8IsRejected(t *testing.T) {
	c := New()
	defer c.Close()

	_, err := c.Chunk(context.Background(), &FileInput{Path: "bad.go", Content: []byte{0xff, 0xfe, 0x00}, Language: "go"})
	require.Error(t, err)
	var osErr *osgreperr.Error
	require.ErrorAs(t, err, &osErr)
	assert.Equal(t, osgreperr.CodeDecodeError, osErr.Code)
}

func TestChunkerUnknownLanguageFallsBackToParagraphs(t *testing.T) {
	c := New()
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{
		Path:     "weird.zig",
		Content:  []byte("const x = 1;\n\nfn main() {}\n"),
		Language: "zig",
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.True(t, chunks[0].IsAnchor)
}

func TestAnchorCapsAtMaxLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < AnchorMaxLines+20; i++ {
		b.WriteString("line\n")
	}
	a := Anchor(&FileInput{Path: "big.go", Content: []byte(b.String())})
	assert.Equal(t, AnchorMaxLines, a.EndLine)
	assert.True(t, a.IsAnchor)
}

func TestFallbackChunkSplitsOversizedParagraph(t *testing.T) {
	var b strings.Builder
	for i := 0; i < FallbackMaxLines+10; i++ {
		b.WriteString("word\n")
	}
	chunks := FallbackChunk(&FileInput{Path: "long.txt", Content: []byte(b.String())})
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, FallbackMaxLines, chunks[0].EndLine)
	assert.Equal(t, FallbackMaxLines+1, chunks[1].StartLine)
}

func TestFallbackChunkEmptyContent(t *testing.T) {
	chunks := FallbackChunk(&FileInput{Path: "empty.txt", Content: []byte("")})
	assert.Empty(t, chunks)
}
