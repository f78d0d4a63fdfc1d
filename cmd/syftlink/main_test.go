package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/syftlink/internal/sync"
	"github.com/openmined/syftlink/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	interactiveTerminal = func() bool { return false }
	os.Exit(m.Run())
}

type cliFixture struct {
	configDir string
	local     string
	remote    string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	base := t.TempDir()
	f := &cliFixture{
		configDir: filepath.Join(base, "config"),
		local:     filepath.Join(base, "local"),
		remote:    filepath.Join(base, "remote"),
	}
	require.NoError(t, os.MkdirAll(f.local, 0o755))
	return f
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd, cleanup := newRootCmd()
	defer cleanup()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config-dir", f.configDir}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestVersionCommand(t *testing.T) {
	f := newCLIFixture(t)
	out, err := f.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Detailed(), strings.TrimSpace(out))
	assert.NoDirExists(t, f.configDir)
}

func TestCreateListDelete(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No links")

	out, err = f.run(t, "create", "docs", f.remote, "--local", f.local, "--no-sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Created link")

	out, err = f.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "docs")
	assert.Contains(t, out, f.remote)
	assert.Contains(t, out, "never")

	_, err = f.run(t, "create", "docs", f.remote+"2", "--local", f.local, "--no-sync")
	assert.ErrorIs(t, err, sync.ErrConfig)

	out, err = f.run(t, "delete", "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted link")
	assert.DirExists(t, f.local)

	_, err = f.run(t, "delete", "docs")
	assert.ErrorIs(t, err, sync.ErrConfig)
}

func TestCreateSyncsImmediately(t *testing.T) {
	f := newCLIFixture(t)
	past := time.Now().Add(-time.Hour)
	writeFile(t, filepath.Join(f.local, "notes", "a.md"), "alpha", past)
	writeFile(t, filepath.Join(f.local, ".DS_Store"), "junk", past)

	out, err := f.run(t, "create", "docs", f.remote, "--local", f.local)
	require.NoError(t, err)
	assert.Contains(t, out, "1 file up")

	assert.Equal(t, "alpha", readFile(t, filepath.Join(f.remote, "notes", "a.md")))
	assert.NoFileExists(t, filepath.Join(f.remote, ".DS_Store"))

	info, err := os.Stat(filepath.Join(f.remote, "notes", "a.md"))
	require.NoError(t, err)
	assert.WithinDuration(t, past, info.ModTime(), time.Second)

	out, err = f.run(t, "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "never")
	assert.FileExists(t, filepath.Join(f.configDir, "logs", logFileName))
}

func TestSyncPropagatesBothWays(t *testing.T) {
	f := newCLIFixture(t)
	past := time.Now().Add(-time.Hour)
	writeFile(t, filepath.Join(f.local, "a.txt"), "a1", past)
	writeFile(t, filepath.Join(f.local, "b.txt"), "b1", past)

	_, err := f.run(t, "create", "docs", f.remote, "--local", f.local)
	require.NoError(t, err)

	// edits must be newer than the ledger but older than the next run
	time.Sleep(20 * time.Millisecond)
	edited := time.Now()
	writeFile(t, filepath.Join(f.remote, "a.txt"), "a2", edited)
	require.NoError(t, os.Remove(filepath.Join(f.local, "b.txt")))
	writeFile(t, filepath.Join(f.local, "c.txt"), "c1", edited)

	out, err := f.run(t, "sync", "docs", "--thread-count", "2", "--batch-size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 file up, 1 file down, 1 deletion")

	assert.Equal(t, "a2", readFile(t, filepath.Join(f.local, "a.txt")))
	assert.NoFileExists(t, filepath.Join(f.remote, "b.txt"))
	assert.Equal(t, "c1", readFile(t, filepath.Join(f.remote, "c.txt")))

	out, err = f.run(t, "sync", "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "0 files up, 0 files down, 0 deletions, 2 unchanged")
}

func TestSyncConflicts(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "create", "docs", f.remote, "--local", f.local, "--no-sync")
	require.NoError(t, err)

	now := time.Now()
	writeFile(t, filepath.Join(f.local, "x.txt"), "local", now)
	writeFile(t, filepath.Join(f.remote, "x.txt"), "remote", now)

	_, err = f.run(t, "sync", "docs")
	assert.ErrorIs(t, err, sync.ErrUnresolvedConflict)
	assert.Equal(t, "local", readFile(t, filepath.Join(f.local, "x.txt")))

	_, err = f.run(t, "sync", "docs", "--prefer", "sideways")
	assert.ErrorIs(t, err, sync.ErrConfig)

	_, err = f.run(t, "sync", "docs", "--prefer", "remote")
	require.NoError(t, err)
	assert.Equal(t, "remote", readFile(t, filepath.Join(f.local, "x.txt")))
}

func TestSyncDryRun(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "create", "docs", f.remote, "--local", f.local, "--no-sync")
	require.NoError(t, err)
	writeFile(t, filepath.Join(f.local, "a.txt"), "a", time.Now().Add(-time.Minute))

	out, err := f.run(t, "sync", "docs", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "path: a.txt")
	assert.Contains(t, out, "kind: CopyLocalToRemote")
	assert.Contains(t, out, "Would sync")
	assert.NoFileExists(t, filepath.Join(f.remote, "a.txt"))
}

func TestSyncResolvesWorkingDirectory(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "create", "docs", f.remote, "--local", f.local, "--no-sync")
	require.NoError(t, err)
	writeFile(t, filepath.Join(f.local, "sub", "a.txt"), "a", time.Now().Add(-time.Minute))

	t.Chdir(filepath.Join(f.local, "sub"))
	_, err = f.run(t, "sync")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.remote, "sub", "a.txt"))

	t.Chdir(f.configDir)
	_, err = f.run(t, "sync")
	assert.ErrorIs(t, err, sync.ErrConfig)
}

func TestSyncRejectsBadSettings(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "create", "docs", f.remote, "--local", f.local, "--no-sync")
	require.NoError(t, err)

	_, err = f.run(t, "sync", "docs", "--thread-count", "0")
	assert.ErrorIs(t, err, sync.ErrConfig)

	_, err = f.run(t, "sync", "docs", "--batch-size=-1")
	assert.ErrorIs(t, err, sync.ErrConfig)

	_, err = f.run(t, "sync", "missing")
	assert.ErrorIs(t, err, sync.ErrConfig)
}

func TestDeleteClean(t *testing.T) {
	f := newCLIFixture(t)
	writeFile(t, filepath.Join(f.local, "a.txt"), "a", time.Now().Add(-time.Minute))
	_, err := f.run(t, "create", "docs", f.remote, "--local", f.local)
	require.NoError(t, err)

	out, err := f.run(t, "delete", "docs", "--clean")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")
	assert.NoDirExists(t, f.local)
	assert.FileExists(t, filepath.Join(f.remote, "a.txt"))
}

func TestQuietConsoleWhileProgressRuns(t *testing.T) {
	c := &cli{consoleLevel: new(slog.LevelVar)}
	c.consoleLevel.Set(slog.LevelDebug)

	restore := c.quietConsole()
	assert.Equal(t, slog.LevelError, c.consoleLevel.Level())
	restore()
	assert.Equal(t, slog.LevelDebug, c.consoleLevel.Level())
}
