package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// lastRunFileName is the file a Report is persisted to alongside the
// meta-store, so a status-style command can show the last sync's summary
// without re-running one (SPEC_FULL.md's SUPPLEMENTED FEATURES section).
const lastRunFileName = "last_sync.json"

// persistedReport wraps a Report with the project root and timestamp it was
// produced for, since one ~/.osgrep/meta.json directory can back multiple
// projects via distinct store names.
type persistedReport struct {
	Report
	ProjectRoot string    `json:"project_root"`
	FinishedAt  time.Time `json:"finished_at"`
}

// lastRunPath derives the last-run report path from the meta-store path:
// they live in the same directory (typically ~/.osgrep).
func lastRunPath(metaPath string) string {
	return filepath.Join(filepath.Dir(metaPath), lastRunFileName)
}

// saveReport writes report to disk using write-then-rename, matching
// internal/hasher.MetaStore.Save's crash-safety pattern.
func saveReport(metaPath, projectRoot string, report Report, finishedAt time.Time) error {
	path := lastRunPath(metaPath)

	data, err := json.MarshalIndent(persistedReport{
		Report:      report,
		ProjectRoot: projectRoot,
		FinishedAt:  finishedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sync report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sync report temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename sync report temp file: %w", err)
	}
	return nil
}

// LastReport is the shape returned by LoadLastReport: a prior sync's summary
// plus when it finished and which project it covered.
type LastReport struct {
	Report
	ProjectRoot string    `json:"project_root"`
	FinishedAt  time.Time `json:"finished_at"`
}

// LoadLastReport reads the most recently persisted sync report next to
// metaPath. A missing file is not an error: it means no sync has completed
// yet (ok is false).
func LoadLastReport(metaPath string) (LastReport, bool, error) {
	data, err := os.ReadFile(lastRunPath(metaPath))
	if err != nil {
		if os.IsNotExist(err) {
			return LastReport{}, false, nil
		}
		return LastReport{}, false, fmt.Errorf("read sync report: %w", err)
	}

	var pr persistedReport
	if err := json.Unmarshal(data, &pr); err != nil {
		return LastReport{}, false, fmt.Errorf("parse sync report: %w", err)
	}
	return LastReport{Report: pr.Report, ProjectRoot: pr.ProjectRoot, FinishedAt: pr.FinishedAt}, true, nil
}
