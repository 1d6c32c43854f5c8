package syncer

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/osgrep/osgrep/internal/gitignore"
)

// alwaysSkippedDirs are never descended into regardless of ignore rules:
// osgrep's own bookkeeping directory and version control metadata.
var alwaysSkippedDirs = map[string]bool{
	".git":    true,
	".osgrep": true,
}

// enumerate walks root and returns every regular file's root-relative path
// that is not matched by ignore or excludePatterns (spec §4.6 step 2).
func enumerate(root string, ignore *gitignore.Matcher, excludePatterns []string) ([]string, error) {
	var out []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		slashRel := filepath.ToSlash(rel)

		if d.IsDir() {
			if alwaysSkippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			if ignore != nil && ignore.Match(slashRel, true) {
				return filepath.SkipDir
			}
			if gitignore.MatchesAnyPattern(slashRel, excludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if ignore != nil && ignore.Match(slashRel, false) {
			return nil
		}
		if gitignore.MatchesAnyPattern(slashRel, excludePatterns) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		out = append(out, slashRel)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}
