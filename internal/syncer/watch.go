package syncer

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce is the coalescing window for watch mode (spec §9,
// supplemented open question 2): fsnotify fires once per touched file, so
// a multi-file save (format-on-save, git checkout) is collapsed into one
// resync instead of one per file.
const WatchDebounce = 400 * time.Millisecond

// Watch runs Sync once, then re-runs it every time the project tree
// changes, coalesced over WatchDebounce (spec §9: watch mode is not a
// separate incremental state machine, it is the same diff algorithm
// triggered more often). It blocks until ctx is cancelled or the watcher
// fails to start; each resync's error is logged and swallowed so one bad
// resync does not kill the watch loop.
func (s *Syncer) Watch(ctx context.Context, opts *Options, onReport func(*Report)) error {
	if _, err := s.Sync(ctx, opts); err != nil {
		return err
	}
	return s.WatchLoop(ctx, opts, onReport)
}

// WatchLoop runs the debounced resync loop without an initial Sync, for
// callers (the serve shell) that already brought the index to readiness
// themselves and just want the ongoing fsnotify-driven resyncs.
func (s *Syncer) WatchLoop(ctx context.Context, opts *Options, onReport func(*Report)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, opts.ProjectRoot); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !pending {
				pending = true
				timer.Reset(WatchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			pending = false
			report, err := s.Sync(ctx, opts)
			if err != nil {
				s.logger.Warn("resync failed", "error", err)
				continue
			}
			if onReport != nil {
				onReport(report)
			}
		}
	}
}

// addRecursive registers every directory under root with watcher, skipping
// the directories the Syncer itself always skips (spec §4.6).
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() != filepath.Base(root) && alwaysSkippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
