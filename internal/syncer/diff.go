package syncer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/osgrep/osgrep/internal/hasher"
)

// candidateFile is a file selected for (re)indexing: its content is already
// loaded so the indexing stage does not need to read it a second time.
type candidateFile struct {
	relPath string
	absPath string
	content []byte
	digest  string
}

// diffResult is the classification of one sync's candidate set against the
// meta-store (spec §4.6 step 4).
type diffResult struct {
	toIndex        []candidateFile
	staleAbsPaths  []string
	newCount       int
	changedCount   int
	unchangedCount int
	readErrors     int
}

// diff reads every candidate's bytes, digests them, and buckets them into
// new/changed/unchanged against meta, plus computes the stale set: paths
// meta knows about, rooted under root, that are no longer on disk.
func diff(root string, candidates []string, meta *hasher.MetaStore) diffResult {
	var result diffResult
	seenAbs := make(map[string]bool, len(candidates))
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}

	for _, rel := range candidates {
		abs := filepath.Join(absRoot, filepath.FromSlash(rel))
		seenAbs[abs] = true

		data, err := os.ReadFile(abs)
		if err != nil {
			result.readErrors++
			continue
		}
		digest := hasher.Digest(data)

		oldDigest, tracked := meta.Get(abs)
		switch {
		case !tracked:
			result.newCount++
			result.toIndex = append(result.toIndex, candidateFile{relPath: rel, absPath: abs, content: data, digest: digest})
		case oldDigest != digest:
			result.changedCount++
			result.toIndex = append(result.toIndex, candidateFile{relPath: rel, absPath: abs, content: data, digest: digest})
		default:
			result.unchangedCount++
		}
	}

	prefix := absRoot + string(filepath.Separator)
	for _, abs := range meta.Paths() {
		if !strings.HasPrefix(abs, prefix) {
			continue
		}
		if !seenAbs[abs] {
			result.staleAbsPaths = append(result.staleAbsPaths, abs)
		}
	}

	return result
}
