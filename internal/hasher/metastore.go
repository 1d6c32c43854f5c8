package hasher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// MetaStore persists the path -> content-digest map that the Syncer uses to
// distinguish new, changed, unchanged, and stale files (spec §3, §4.1). It is
// a single flat JSON file under ~/.osgrep/meta.json, rewritten whole on Save
// using write-then-rename so a crash mid-write cannot corrupt it.
type MetaStore struct {
	mu     sync.RWMutex
	path   string
	hashes map[string]string
	logger *slog.Logger
}

// New creates a MetaStore backed by the file at path. Call Load before use.
func New(path string, logger *slog.Logger) *MetaStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetaStore{
		path:   path,
		hashes: make(map[string]string),
		logger: logger.With("component", "metastore"),
	}
}

// Load reads the on-disk map. A missing file yields an empty map; a corrupt
// file yields an empty map plus a warning, never an error — spec §4.1.
func (m *MetaStore) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.hashes = make(map[string]string)
			return nil
		}
		return fmt.Errorf("read meta-store: %w", err)
	}

	var loaded map[string]string
	if err := json.Unmarshal(data, &loaded); err != nil {
		m.logger.Warn("meta-store file is corrupt, starting empty", "path", m.path, "error", err)
		m.hashes = make(map[string]string)
		return nil
	}

	m.hashes = loaded
	return nil
}

// Save atomically rewrites the whole map to disk.
func (m *MetaStore) Save() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.hashes, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal meta-store: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create meta-store directory: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write meta-store temp file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("rename meta-store temp file: %w", err)
	}
	return nil
}

// Get returns the stored digest for path, if any.
func (m *MetaStore) Get(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[path]
	return h, ok
}

// Set records the digest for path.
func (m *MetaStore) Set(path, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[path] = hash
}

// Delete removes path from the map. No-op if absent.
func (m *MetaStore) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, path)
}

// Paths returns a snapshot of every tracked path.
func (m *MetaStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.hashes))
	for p := range m.hashes {
		paths = append(paths, p)
	}
	return paths
}

// Len returns the number of tracked paths.
func (m *MetaStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hashes)
}
