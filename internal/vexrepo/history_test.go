package vexrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryWalksCommitsNewestFirst(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))

	writeWorkingFile(t, dir, "b.py", "print(2)\n")
	require.NoError(t, r.Add(ctx, []string{"b.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add b.py"}))

	entries, err := r.History(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3) // init's genesis commit plus the two above

	require.Equal(t, "add b.py", entries[0].Commit.Message)
	require.Equal(t, "add a.py", entries[1].Commit.Message)
}

func TestHistoryFiltersByPath(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))

	writeWorkingFile(t, dir, "b.py", "print(2)\n")
	require.NoError(t, r.Add(ctx, []string{"b.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add b.py"}))

	entries, err := r.History(ctx, "a.py", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "add a.py", entries[0].Commit.Message)
}
