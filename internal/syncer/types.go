// Package syncer orchestrates the incremental indexing pipeline of spec
// §4.6: enumerate, diff against the meta-store, delete stale rows, chunk
// and embed new/changed files under bounded concurrency, then build the
// FTS and vector indexes. It is grounded in the teacher's internal/scanner
// (file enumeration + gitignore-aware walk) and internal/index (the
// diff-then-write orchestration loop), generalized onto this module's
// Store/Chunker/workerpool facade.
package syncer

import "github.com/osgrep/osgrep/internal/gitignore"

// Phase names a stage of a sync run for progress reporting (spec §4.6).
type Phase string

const (
	PhaseEnumerate Phase = "enumerate"
	PhaseIndex     Phase = "index"
	PhaseFinalize  Phase = "finalize"
)

// Progress is reported at least once per file during a sync (spec §4.6).
type Progress struct {
	Phase       Phase
	Processed   int
	Total       int
	CurrentPath string
}

// Options configures one Sync call. Ignore is supplied by the caller
// (spec §1: ignore-file *loading* is an external collaborator; only
// *matching* is this module's concern) already populated from whatever
// .gitignore/.osgrepignore files the caller found; a nil Ignore matches
// nothing.
type Options struct {
	ProjectRoot string
	Ignore      *gitignore.Matcher
	OnProgress  func(Progress)
}

// Report summarizes one sync run (spec §4.6 step 8).
type Report struct {
	Scanned   int
	New       int
	Changed   int
	Unchanged int
	Stale     int
	Indexed   int
	Errors    int
}

func (o *Options) report(p Progress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}
