package vexrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexvcs/vex/internal/objects"
)

func TestBranchForgetRemovesBranchAndRefusesActiveOne(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	require.NoError(t, r.BranchNew(ctx, "feature"))
	require.NoError(t, r.BranchForget(ctx, "feature"))

	settings, err := r.loadSettings(ctx, r.reader())
	require.NoError(t, err)
	table, err := r.loadBranchTable(ctx, r.cas, settings)
	require.NoError(t, err)
	_, ok := table.ByName("feature")
	require.False(t, ok)

	err = r.BranchForget(ctx, DefaultBranchName)
	require.Error(t, err)
}

func TestUndoBranchForgetRestoresBranchTableRow(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	require.NoError(t, r.BranchNew(ctx, "feature"))
	require.NoError(t, r.BranchForget(ctx, "feature"))
	require.NoError(t, r.Undo(ctx))

	settings, err := r.loadSettings(ctx, r.reader())
	require.NoError(t, err)
	table, err := r.loadBranchTable(ctx, r.cas, settings)
	require.NoError(t, err)
	_, ok := table.ByName("feature")
	require.True(t, ok)
}

func TestPurgeScrubsPathFromEveryCommitAndFromHistory(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "secrets.txt", "sk-live-abc\n")
	writeWorkingFile(t, dir, "readme.txt", "hello\n")
	require.NoError(t, r.Add(ctx, []string{"secrets.txt", "readme.txt"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add secrets"}))

	writeWorkingFile(t, dir, "secrets.txt", "sk-live-def\n")
	require.NoError(t, r.Add(ctx, []string{"secrets.txt"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "rotate secrets"}))

	entries, err := r.History(ctx, "secrets.txt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, r.Purge(ctx, []string{"secrets.txt"}))

	entries, err = r.History(ctx, "secrets.txt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 0)

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	commit, err := r.loadCommit(ctx, r.cas, session.HeadCommitHash)
	require.NoError(t, err)
	flat := map[string]objects.TreeEntry{}
	require.NoError(t, r.flattenTree(ctx, r.cas, commit.RootTreeHash, "", flat))
	_, hasSecrets := flat["secrets.txt"]
	require.False(t, hasSecrets)
	_, hasReadme := flat["readme.txt"]
	require.True(t, hasReadme)
}

func TestUndoPurgeRestoresOriginalHistory(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)
	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	writeWorkingFile(t, dir, "secrets.txt", "sk-live-abc\n")
	require.NoError(t, r.Add(ctx, []string{"secrets.txt"}))
	require.NoError(t, r.Commit(ctx, CommitOptions{Message: "add secrets"}))

	require.NoError(t, r.Purge(ctx, []string{"secrets.txt"}))
	entries, err := r.History(ctx, "secrets.txt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 0)

	require.NoError(t, r.Undo(ctx))
	entries, err = r.History(ctx, "secrets.txt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
