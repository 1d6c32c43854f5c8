package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// RotatingWriter is an io.Writer over a size-rotated log file: once the
// current file would exceed maxSize, it is renamed server.log -> .1 -> .2
// -> ... and a fresh file is opened, keeping at most maxFiles rotated
// generations. Every write is synced immediately so `tail -f` on the log
// file (or osgrep's own debug logging) shows activity without buffering lag.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	written int64
}

// NewRotatingWriter opens (creating if absent) the log file at path, ready
// to rotate once it would grow past maxSizeMB megabytes, keeping at most
// maxFiles rotated generations.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxFiles: maxFiles,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer, rotating first if p would push the current
// file past maxSize.
func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			// Keep writing to the current file rather than drop the line.
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err = w.file.Write(p)
	w.written += int64(n)
	if err == nil {
		_ = w.file.Sync()
	}
	return
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	w.file = f
	w.written = info.Size()
	return nil
}

// rotate shifts every existing generation up by one (server.log.N ->
// server.log.N+1, dropping anything at or past maxFiles), moves the
// current file to server.log.1, and opens a fresh server.log.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close log file before rotation: %w", err)
		}
		w.file = nil
	}

	generations, err := w.rotatedGenerations()
	if err != nil {
		return err
	}

	// Highest-numbered first, so renaming never overwrites a not-yet-moved file.
	sort.Slice(generations, func(i, j int) bool { return generations[i].num > generations[j].num })

	for _, g := range generations {
		if g.num >= w.maxFiles {
			_ = os.Remove(g.path)
			continue
		}
		_ = os.Rename(g.path, fmt.Sprintf("%s.%d", w.path, g.num+1))
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.path+".1"); err != nil {
			return fmt.Errorf("rotate current log file: %w", err)
		}
	}

	w.written = 0
	return w.openFile()
}

type rotatedGeneration struct {
	path string
	num  int
}

// rotatedGenerations lists every server.log.N sibling of w.path.
func (w *RotatingWriter) rotatedGenerations() ([]rotatedGeneration, error) {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)

	matches, err := filepath.Glob(filepath.Join(dir, base+".*"))
	if err != nil {
		return nil, fmt.Errorf("list rotated log files: %w", err)
	}

	var out []rotatedGeneration
	for _, m := range matches {
		suffix := strings.TrimPrefix(filepath.Base(m), base+".")
		num, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		out = append(out, rotatedGeneration{path: m, num: num})
	}
	return out, nil
}
