// Package lockmgr implements the per-repository exclusive writer lock of
// spec §4.8. It is grounded in the teacher's PID-file liveness probe
// (signal-0 against the stored pid) generalized from a singleton daemon PID
// file to a per-directory lock with content-readable holder info, plus the
// teacher's internal/embed.FileLock (github.com/gofrs/flock) for the actual
// cross-process mutual exclusion: the LOCK file's content is what a human
// or another osgrep process reads to find the holder, but the OS advisory
// lock is what actually blocks a second acquirer while the first is alive,
// even if the holder crashes hard enough to skip Release.
package lockmgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/osgrep/osgrep/internal/osgreperr"
)

// LockFileName is the name of the lock file within the lock directory
// (<projectRoot>/.osgrep/LOCK per spec §6).
const LockFileName = "LOCK"

// Lock represents an acquired writer lock. Release must be called to give it
// up; Release tolerates a lock file that has already been removed.
type Lock struct {
	path string
	flk  *flock.Flock
}

// Acquire attempts to take the exclusive writer lock at <lockDir>/LOCK.
//
// On collision it parses the existing holder pid; if that process is not
// alive (a signal-0 probe finds no such process), the stale lock file is removed and
// acquisition is retried exactly once. If the holder is alive, Acquire
// returns an *osgreperr.Error with code CodeLockHeld carrying the holder's
// pid and timestamp.
func Acquire(lockDir string) (*Lock, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(lockDir, LockFileName)

	lock, err := tryAcquire(path)
	if err == nil {
		return lock, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	holderPID, heldSince, readErr := readHolder(path)
	if readErr != nil {
		// Lock file vanished between the failed create and our read; retry once.
		lock, err = tryAcquire(path)
		if err == nil {
			return lock, nil
		}
		return nil, fmt.Errorf("acquire lock after race: %w", err)
	}

	if processAlive(holderPID) {
		return nil, osgreperr.LockHeld(holderPID, heldSince,
			fmt.Sprintf("repository is locked by live process %d", holderPID))
	}

	// Stale holder: reclaim and retry once.
	_ = os.Remove(path)
	lock, err = tryAcquire(path)
	if err != nil {
		return nil, fmt.Errorf("acquire lock after reclaiming stale holder: %w", err)
	}
	return lock, nil
}

// flockPath is the sidecar file gofrs/flock advisory-locks for the
// duration of the writer lock. It is separate from the LOCK content file
// so the exclusive-create/stale-pid dance above (which needs a file whose
// mere *existence* signals contention) is untouched by the OS lock's own
// lifecycle.
func flockPath(lockPath string) string {
	return lockPath + ".flock"
}

func tryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	contents := fmt.Sprintf("%d\n%s", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(contents); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock contents: %w", err)
	}

	flk := flock.New(flockPath(path))
	locked, err := flk.TryLock()
	if err != nil || !locked {
		// Another process is holding the OS advisory lock even though it
		// hasn't (yet) recreated the LOCK content file; remove the content
		// file just written and return an acquisition error rather than
		// leaving a half-acquired lock behind.
		_ = os.Remove(path)
		if err == nil {
			err = fmt.Errorf("advisory lock held by another process")
		}
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	return &Lock{path: path, flk: flk}, nil
}

// Release removes the lock file and releases the OS advisory lock.
// Removing an already-absent lock is not an error (spec §4.8).
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	var errs []error
	if l.flk != nil {
		if err := l.flk.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("unlock advisory lock: %w", err))
		}
		_ = os.Remove(flockPath(l.path))
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("release lock: %v", errs)
	}
	return nil
}

func readHolder(path string) (pid int, timestamp string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", err
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	pid, err = strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, "", fmt.Errorf("parse holder pid: %w", err)
	}
	if len(lines) > 1 {
		timestamp = strings.TrimSpace(lines[1])
	}
	return pid, timestamp, nil
}

// processAlive reports whether pid names a live process, using the signal-0
// probe: on Unix, os.FindProcess always succeeds, so liveness is only
// observable by attempting to signal it.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	// EPERM means the process exists but belongs to another user.
	return err == nil || errors.Is(err, syscall.EPERM)
}
