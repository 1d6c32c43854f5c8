package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/osgrep/osgrep/internal/osgreperr"
)

// Chunker assembles the anchor chunk and the ordered body-chunk run for one
// file, per spec §4.2. It does not set Hash or ContextPrev/ContextNext: the
// Syncer owns the file-level digest and fills in neighbor context once a
// file's whole chunk run is known.
type Chunker struct {
	code *CodeChunker
}

// New builds a Chunker backed by the default tree-sitter language registry.
func New() *Chunker {
	return &Chunker{code: NewCodeChunker()}
}

// Close releases the underlying tree-sitter parser.
func (c *Chunker) Close() {
	c.code.Close()
}

// Chunk returns the anchor chunk followed by the body chunks for file, with
// ChunkIndex and ID assigned (anchor at 0, body chunks starting at 1). A
// file that fails to decode as UTF-8 is rejected with an *osgreperr.Error
// carrying CodeDecodeError; per spec §4.2 the caller should skip it with a
// warning and write no rows.
func (c *Chunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if !utf8.Valid(file.Content) {
		return nil, osgreperr.DecodeError(file.Path, fmt.Errorf("invalid UTF-8"))
	}

	anchor := Anchor(file)

	body, err := c.code.Chunk(ctx, file)
	if err != nil {
		// The codec check above already passed, so this is a defensive
		// fallback only; treat any residual error as "no grammar available".
		body = nil
	}
	if body == nil {
		body = FallbackChunk(file)
	}

	chunks := make([]*Chunk, 0, 1+len(body))
	anchor.ChunkIndex = 0
	anchor.ID = chunkID(file.Path, 0)
	chunks = append(chunks, anchor)

	for i, ch := range body {
		ch.ChunkIndex = i + 1
		ch.ID = chunkID(file.Path, i+1)
		chunks = append(chunks, ch)
	}

	return chunks, nil
}

func chunkID(path string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", path, index)))
	return hex.EncodeToString(sum[:])[:16]
}
