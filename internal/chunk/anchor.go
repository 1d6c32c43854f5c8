package chunk

import "bytes"

// Anchor synthesizes the per-file summary chunk described in spec §4.2: the
// head of the file, capped at AnchorMaxLines, tagged IsAnchor so file-level
// recall works for queries naming top-of-file identifiers (imports, module
// docstrings) that would otherwise fall outside every body chunk.
func Anchor(file *FileInput) *Chunk {
	// A final newline ends the last line; it does not start another one.
	lines := bytes.Split(bytes.TrimSuffix(file.Content, []byte("\n")), []byte("\n"))
	n := len(lines)
	if n > AnchorMaxLines {
		n = AnchorMaxLines
	}
	content := string(bytes.Join(lines[:n], []byte("\n")))

	return &Chunk{
		Path:      file.Path,
		Content:   content,
		StartLine: 1,
		EndLine:   n,
		IsAnchor:  true,
	}
}
