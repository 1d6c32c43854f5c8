package chunk

import "strings"

// FallbackChunk splits file on blank-line-separated paragraphs, per spec
// §4.2's fallback path for files with an unknown extension or a grammar
// that failed to parse. Paragraphs longer than FallbackMaxLines are further
// split at the line cap so no single chunk grows unbounded.
func FallbackChunk(file *FileInput) []*Chunk {
	lines := strings.Split(string(file.Content), "\n")

	var paragraphs []lineRange
	start := -1
	for i, line := range lines {
		blank := strings.TrimSpace(line) == ""
		switch {
		case !blank && start == -1:
			start = i
		case blank && start != -1:
			paragraphs = append(paragraphs, lineRange{startLine: start + 1, endLine: i})
			start = -1
		}
	}
	if start != -1 {
		paragraphs = append(paragraphs, lineRange{startLine: start + 1, endLine: len(lines)})
	}
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []*Chunk
	for _, p := range paragraphs {
		for s := p.startLine; s <= p.endLine; s += FallbackMaxLines {
			e := s + FallbackMaxLines - 1
			if e > p.endLine {
				e = p.endLine
			}
			content := strings.Join(lines[s-1:e], "\n")
			if strings.TrimSpace(content) == "" {
				continue
			}
			chunks = append(chunks, &Chunk{
				Path:      file.Path,
				Content:   content,
				StartLine: s,
				EndLine:   e,
			})
		}
	}
	return chunks
}
