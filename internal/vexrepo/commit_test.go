package vexrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go.brendoncarroll.net/tai64"

	"github.com/vexvcs/vex/internal/objects"
)

func TestCommitFoldsManifestIntoTreeAndClearsIt(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	require.True(t, session.WorkingManifestHash.IsZero())
	require.False(t, session.HeadCommitHash.IsZero())

	commit, err := r.loadCommit(ctx, r.cas, session.HeadCommitHash)
	require.NoError(t, err)
	require.False(t, commit.RootTreeHash.IsZero())

	files := map[string]objects.TreeEntry{}
	require.NoError(t, r.flattenTree(ctx, r.cas, commit.RootTreeHash, "", files))
	entry, ok := files["a.py"]
	require.True(t, ok)
	require.Equal(t, objects.EntryFile, entry.Kind)
}

func TestCommitWithNothingStagedFails(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	err = r.Commit(ctx, CommitOptions{Message: "empty"})
	require.Error(t, err)
}

func TestCommitAmendReusesParentAndReplacesTip(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add a.py"}))
	firstSession, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	firstCommit, err := r.loadCommit(ctx, r.cas, firstSession.HeadCommitHash)
	require.NoError(t, err)

	writeWorkingFile(t, dir, "b.py", "print(2)\n")
	require.NoError(t, r.Add(ctx, []string{"b.py"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Amend: true}))

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	commit, err := r.loadCommit(ctx, r.cas, session.HeadCommitHash)
	require.NoError(t, err)
	require.Equal(t, objects.CommitAmend, commit.Kind)
	require.Equal(t, firstCommit.Parent, commit.Parent)
	require.Equal(t, firstCommit.Message, commit.Message)
}

func TestCommitPromotesPreparedCommit(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "a.py", "print(1)\n")
	require.NoError(t, r.Add(ctx, []string{"a.py"}))
	require.NoError(t, r.CommitPrepare(ctx, "add a.py"))

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	require.False(t, session.PreparedCommitHash.IsZero())
	prepared, err := r.loadCommit(ctx, r.cas, session.PreparedCommitHash)
	require.NoError(t, err)
	require.Equal(t, tai64.TAI64(0), prepared.TimestampApplied)

	require.NoError(t, r.Commit(ctx, CommitOptions{}))

	session, _, err = r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	require.True(t, session.PreparedCommitHash.IsZero())
	require.True(t, session.WorkingManifestHash.IsZero())

	commit, err := r.loadCommit(ctx, r.cas, session.HeadCommitHash)
	require.NoError(t, err)
	require.Equal(t, "add a.py", commit.Message)
	require.Equal(t, prepared.RootTreeHash, commit.RootTreeHash)
	require.NotEqual(t, tai64.TAI64(0), commit.TimestampApplied)

	files := map[string]objects.TreeEntry{}
	require.NoError(t, r.flattenTree(ctx, r.cas, commit.RootTreeHash, "", files))
	_, ok := files["a.py"]
	require.True(t, ok)
}
