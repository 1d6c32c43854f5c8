package chunk

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/osgrep/osgrep/internal/osgreperr"
)

// CodeChunker produces body chunks from a tree-sitter parse, per spec §4.2:
// one chunk per top-level declaration, declarations over the soft size cap
// split along child boundaries, with immediately preceding comments attached.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewCodeChunker builds a CodeChunker against the default language registry.
func NewCodeChunker() *CodeChunker {
	return &CodeChunker{
		parser:   NewParser(),
		registry: DefaultRegistry(),
	}
}

// Close releases the underlying tree-sitter parser.
func (c *CodeChunker) Close() {
	c.parser.Close()
}

// SupportedExtensions reports the extensions this chunker has a grammar for.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// languageFor resolves file.Language if set, else the extension.
func (c *CodeChunker) languageFor(file *FileInput) (*LanguageConfig, bool) {
	if file.Language != "" {
		if cfg, ok := c.registry.GetByName(file.Language); ok {
			return cfg, true
		}
	}
	return c.registry.GetByExtension(filepath.Ext(file.Path))
}

// Chunk splits file into body chunks. A nil, nil return (with no error)
// means no grammar is available or the parse failed, and the caller should
// fall back to paragraph splitting per spec §4.2's error policy.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if !utf8.Valid(file.Content) {
		return nil, osgreperr.DecodeError(file.Path, fmt.Errorf("invalid UTF-8"))
	}

	cfg, ok := c.languageFor(file)
	if !ok {
		return nil, nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, cfg.Name)
	if err != nil || tree.Root == nil {
		return nil, nil
	}

	declTypes := make(map[string]bool, len(cfg.DeclarationTypes))
	for _, t := range cfg.DeclarationTypes {
		declTypes[t] = true
	}
	commentTypes := make(map[string]bool, len(cfg.CommentTypes))
	for _, t := range cfg.CommentTypes {
		commentTypes[t] = true
	}

	var chunks []*Chunk
	siblings := tree.Root.Children
	for i, node := range siblings {
		if !declTypes[node.Type] {
			continue
		}

		docStart := node.StartByte
		docLine := int(node.StartPoint.Row) + 1
		var docComment string
		for j := i - 1; j >= 0; j-- {
			prev := siblings[j]
			if !commentTypes[prev.Type] {
				break
			}
			// Only attach comments immediately above, no intervening blank-line gap.
			if int(siblings[j+1].StartPoint.Row)-int(prev.EndPoint.Row) > 1 {
				break
			}
			docComment = strings.TrimSpace(prev.GetContent(file.Content)) + "\n" + docComment
			docStart = prev.StartByte
			docLine = int(prev.StartPoint.Row) + 1
		}
		docComment = strings.TrimSpace(docComment)

		name := declarationName(node, file.Content, cfg.NameField)

		ranges := splitBySize(node, file.Content)
		for k, r := range ranges {
			start := r.startLine
			content := string(file.Content[r.startByte:r.endByte])
			dc := ""
			if k == 0 {
				start = docLine
				content = string(file.Content[docStart:r.endByte])
				dc = docComment
			}
			symbolName := name
			if len(ranges) > 1 {
				symbolName = fmt.Sprintf("%s_part%d", name, k+1)
			}
			chunks = append(chunks, &Chunk{
				Path:       file.Path,
				Content:    content,
				StartLine:  start,
				EndLine:    r.endLine,
				SymbolName: symbolName,
				DocComment: dc,
			})
		}
	}

	return chunks, nil
}

func declarationName(node *Node, source []byte, nameField string) string {
	for _, child := range node.Children {
		if child.Type == "identifier" || child.Type == "type_identifier" ||
			child.Type == "property_identifier" || child.Type == "field_identifier" {
			return child.GetContent(source)
		}
	}
	for _, wrapperType := range []string{"variable_declarator", "type_spec", "const_spec", "var_spec"} {
		for _, child := range node.Children {
			if child.Type == wrapperType {
				return declarationName(child, source, nameField)
			}
		}
	}
	_ = nameField
	return node.Type
}

type lineRange struct {
	startByte, endByte uint32
	startLine, endLine int
}

// splitBySize returns node's span as one range if it already fits under the
// cap, otherwise splits it into multiple ranges along the boundaries of its
// largest child (typically the declaration's body block), per spec §4.2.
func splitBySize(node *Node, source []byte) []lineRange {
	full := lineRange{
		startByte: node.StartByte,
		endByte:   node.EndByte,
		startLine: int(node.StartPoint.Row) + 1,
		endLine:   int(node.EndPoint.Row) + 1,
	}
	if fits(full) {
		return []lineRange{full}
	}

	body := largestChild(node)
	boundaries := node.Children
	if body != nil && len(body.Children) > 1 {
		boundaries = body.Children
	}
	if len(boundaries) == 0 {
		return []lineRange{full}
	}

	var ranges []lineRange
	groupStart := node.StartByte
	groupStartLine := int(node.StartPoint.Row) + 1
	var lastEnd uint32 = node.StartByte
	lastEndLine := groupStartLine

	flush := func(endByte uint32, endLine int) {
		if endByte <= groupStart {
			return
		}
		ranges = append(ranges, lineRange{
			startByte: groupStart,
			endByte:   endByte,
			startLine: groupStartLine,
			endLine:   endLine,
		})
	}

	for _, b := range boundaries {
		candidate := lineRange{startByte: groupStart, endByte: b.EndByte, startLine: groupStartLine, endLine: int(b.EndPoint.Row) + 1}
		if !fits(candidate) && lastEnd > groupStart {
			flush(lastEnd, lastEndLine)
			groupStart = lastEnd
			groupStartLine = lastEndLine
		}
		lastEnd = b.EndByte
		lastEndLine = int(b.EndPoint.Row) + 1
	}
	flush(node.EndByte, int(node.EndPoint.Row)+1)

	if len(ranges) == 0 {
		return []lineRange{full}
	}
	return ranges
}

func fits(r lineRange) bool {
	lines := r.endLine - r.startLine + 1
	bytes := int(r.endByte - r.startByte)
	return lines <= BodyMaxLines && bytes <= BodyMaxBytes
}

func largestChild(node *Node) *Node {
	var best *Node
	var bestSpan uint32
	for _, child := range node.Children {
		span := child.EndByte - child.StartByte
		if span > bestSpan {
			bestSpan = span
			best = child
		}
	}
	return best
}
