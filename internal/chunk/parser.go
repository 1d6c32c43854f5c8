package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser adapts tree-sitter to this package's own Tree/Node shape (spec
// §4.2's "uses parse trees when available"), so CodeChunker never touches
// the smacker bindings directly and a grammar-less fallback doesn't need a
// parser at all.
type Parser struct {
	sitter   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser builds a Parser against the default language registry
// (internal/chunk/languages.go).
func NewParser() *Parser {
	return &Parser{
		sitter:   sitter.NewParser(),
		registry: DefaultRegistry(),
	}
}

// Parse parses source as language and returns this package's own Tree, or
// an error if language has no registered grammar. A parse failure from
// tree-sitter itself is also surfaced as an error; CodeChunker treats both
// as a signal to fall back to paragraph splitting (spec §4.2's error
// policy), never as a fatal condition.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
	p.sitter.SetLanguage(tsLang)

	tsTree, err := p.sitter.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse source as %s: %w", language, err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse source as %s: tree-sitter returned no tree", language)
	}

	return &Tree{
		Root:     convertNode(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.sitter != nil {
		p.sitter.Close()
	}
}

// convertNode copies a tree-sitter node (and its whole subtree) into this
// package's own Node, so the rest of the chunker never imports the
// tree-sitter package directly.
func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}

	childCount := int(tsNode.ChildCount())
	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
		Children: make([]*Node, 0, childCount),
	}

	for i := 0; i < childCount; i++ {
		if child := tsNode.Child(i); child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}

	return node
}

// GetContent returns the slice of source spanned by n.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}
