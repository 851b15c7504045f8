package vexrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexvcs/vex/internal/objects"
)

func statusOf(t *testing.T, entries []StatusEntry, path string) (objects.TrackStatus, bool) {
	t.Helper()
	for _, e := range entries {
		if e.Path == path {
			return e.State, true
		}
	}
	return "", false
}

func TestStatusReportsUntrackedAndStagedFiles(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "staged.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"staged.py"}))
	writeWorkingFile(t, dir, "loose.py", "print(2)\n")

	entries, err := r.Status(ctx)
	require.NoError(t, err)

	state, ok := statusOf(t, entries, "staged.py")
	require.True(t, ok)
	require.Equal(t, objects.TrackAdded, state)

	state, ok = statusOf(t, entries, "loose.py")
	require.True(t, ok)
	require.Equal(t, objects.TrackUntracked, state)
}

func TestStatusDetectsModificationAgainstHead(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))

	entries, err := r.Status(ctx)
	require.NoError(t, err)
	state, ok := statusOf(t, entries, "a.py")
	require.True(t, ok)
	require.Equal(t, objects.TrackUnchanged, state)

	writeWorkingFile(t, dir, "a.py", "print(2)\n")
	entries, err = r.Status(ctx)
	require.NoError(t, err)
	state, ok = statusOf(t, entries, "a.py")
	require.True(t, ok)
	require.Equal(t, objects.TrackModified, state)
}

func TestStatusReportsDeletedSinceHead(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))
	require.NoError(t, r.Remove(ctx, []string{"a.py"}))

	entries, err := r.Status(ctx)
	require.NoError(t, err)
	state, ok := statusOf(t, entries, "a.py")
	require.True(t, ok)
	require.Equal(t, objects.TrackDeleted, state)
}
