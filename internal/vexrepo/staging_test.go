package vexrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexvcs/vex/internal/objects"
)

func writeWorkingFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestAddTracksNewFile(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	manifest, err := r.loadWorkingManifest(ctx, r.cas, session)
	require.NoError(t, err)
	entry, ok := manifest.Find("a.py")
	require.True(t, ok)
	require.Equal(t, objects.TrackAdded, entry.Status)
}

func TestForgetDropsStagedEntryWithoutTouchingDisk(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Forget(ctx, []string{"a.py"}))

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	manifest, err := r.loadWorkingManifest(ctx, r.cas, session)
	require.NoError(t, err)
	_, ok := manifest.Find("a.py")
	require.False(t, ok)

	_, err = os.Stat(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
}

func TestRemoveDeletesFileAndMarksManifest(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))

	require.NoError(t, r.Remove(ctx, []string{"a.py"}))
	_, err = os.Stat(filepath.Join(dir, "a.py"))
	require.True(t, os.IsNotExist(err))

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	manifest, err := r.loadWorkingManifest(ctx, r.cas, session)
	require.NoError(t, err)
	entry, ok := manifest.Find("a.py")
	require.True(t, ok)
	require.Equal(t, objects.TrackDeleted, entry.Status)
}

func TestUndoRemoveMaterializesFileBack(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))
	require.NoError(t, r.Remove(ctx, []string{"a.py"}))

	require.NoError(t, r.Undo(ctx))

	data, err := os.ReadFile(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	require.Equal(t, "print(1)\n", string(data))
}
