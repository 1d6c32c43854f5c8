// Package chunk splits source files into the ordered sequence of retrievable
// windows described by spec §3/§4.2: one synthesized anchor chunk per file
// plus a run of body chunks produced by a tree-walk when a grammar is
// available, or by paragraph splitting when it is not.
package chunk

const (
	// AnchorMaxLines caps the synthesized per-file summary window.
	AnchorMaxLines = 40

	// BodyMaxLines and BodyMaxBytes are the soft caps a single body chunk may
	// not exceed before it is split along child boundaries.
	BodyMaxLines = 60
	BodyMaxBytes = 1024

	// FallbackMaxLines bounds a single paragraph chunk in the fallback path.
	FallbackMaxLines = 60
)

// Chunk is a contiguous text window from one file, per spec §3.
type Chunk struct {
	ID           string // stable id derived from path + chunk_index
	Path         string // relative to project root
	Hash         string // digest of the file at index time; shared by all chunks from one sync
	Content      string
	StartLine    int // 1-indexed
	EndLine      int // inclusive
	ChunkIndex   int // ordinal within file; anchor is 0, body chunks start at 1
	IsAnchor     bool
	ContextPrev  string // filled in by the caller from the preceding chunk's content
	ContextNext  string // filled in by the caller from the following chunk's content
	SymbolName   string // declaration name, when known (body chunks from a tree-walk)
	DocComment   string // comment block immediately preceding the declaration, if any
}

// FileInput is the input to Chunk: a single file's relative path, raw bytes,
// and the language name resolved from its extension (empty if unknown).
type FileInput struct {
	Path     string
	Content  []byte
	Language string
}

// Tree represents a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds the tree-sitter node-type tables for one language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Node types that indicate a top-level declaration worth its own chunk.
	DeclarationTypes []string

	// Node types that represent comments, used to attach doc comments to the
	// declaration that immediately follows them.
	CommentTypes []string

	// NameField is the field name tree-sitter uses for a declaration's
	// identifier child (e.g. "name").
	NameField string
}
