package lockmgr

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osgrep/osgrep/internal/osgreperr"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, LockFileName))
	require.NoError(t, lock.Release())
	require.NoFileExists(t, filepath.Join(dir, LockFileName))
}

func TestReleaseMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, LockFileName)))
	require.NoError(t, lock.Release())
}

func TestAcquireHeldByLiveProcessFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)
	contents := "1\n" + time.Now().UTC().Format(time.RFC3339)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	// pid 1 (init) is virtually always alive in any container/VM this test runs in.
	_, err := Acquire(dir)
	require.Error(t, err)
	var osErr *osgreperr.Error
	require.ErrorAs(t, err, &osErr)
	require.Equal(t, osgreperr.CodeLockHeld, osErr.Code)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	deadPID := cmd.Process.Pid

	contents := strconv.Itoa(deadPID) + "\n" + time.Now().UTC().Format(time.RFC3339)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NotNil(t, lock)
	require.NoError(t, lock.Release())
}
