package vexrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexvcs/vex/internal/objects"
)

func TestUndoThenRedoRestoresCommit(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	committedHead := session.HeadCommitHash
	require.False(t, committedHead.IsZero())

	require.NoError(t, r.Undo(ctx))
	session, _, err = r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	require.NotEqual(t, committedHead, session.HeadCommitHash)

	require.NoError(t, r.Redo(ctx, 0))
	session, _, err = r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	require.Equal(t, committedHead, session.HeadCommitHash)
}

func TestUndoWithNothingToUndoFails(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)
	require.NoError(t, r.Undo(ctx))
	require.Error(t, r.Undo(ctx))
}

// TestRedoBranchingPreservesAlternatives walks the scenario that motivates
// redo branching: add a.py, commit, undo the commit, then add b.py while
// the redo stack is still pending. redo:list should then offer a choice
// between "keep the add of b.py" and "bring the commit back" rather than
// silently discarding the undone commit.
func TestRedoBranchingPreservesAlternatives(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))
	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	committedHead := session.HeadCommitHash
	require.NoError(t, r.Undo(ctx))

	writeWorkingFile(t, dir, "b.py", "print(2)\n")
	require.NoError(t, r.Add(ctx, []string{"b.py"}))

	entry, ok, err := r.RedoList(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, entry.Options, 2)

	var keepOpt, bringBackOpt = -1, -1
	for i, opt := range entry.Options {
		if opt.Keep {
			keepOpt = i
		} else {
			bringBackOpt = i
		}
	}
	require.GreaterOrEqual(t, keepOpt, 0)
	require.GreaterOrEqual(t, bringBackOpt, 0)

	// Bringing the commit back forward-swaps to the exact pointer values
	// the original commit wrote, bit-identical to the post-commit state;
	// it doesn't re-run against the now-current working manifest, so the
	// interleaved staged b.py doesn't end up folded into it.
	require.NoError(t, r.Redo(ctx, bringBackOpt+1))

	session, _, err = r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	require.Equal(t, committedHead, session.HeadCommitHash)
	commit, err := r.loadCommit(ctx, r.cas, session.HeadCommitHash)
	require.NoError(t, err)

	files := map[string]objects.TreeEntry{}
	require.NoError(t, r.flattenTree(ctx, r.cas, commit.RootTreeHash, "", files))
	_, hasA := files["a.py"]
	_, hasB := files["b.py"]
	require.True(t, hasA)
	require.False(t, hasB)
}

func TestRedoAmbiguousWithoutChoiceFails(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))
	require.NoError(t, r.Undo(ctx))

	writeWorkingFile(t, dir, "b.py", "print(2)\n")
	require.NoError(t, r.Add(ctx, []string{"b.py"}))

	require.Error(t, r.Redo(ctx, 0))
}
