package vexrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newWorkDir(t *testing.T) string {
	dir := t.TempDir()
	return dir
}

func TestInitCreatesScaffoldAndDefaultBranch(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)

	r, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)
	require.NotNil(t, r)

	_, err = os.Stat(filepath.Join(dir, VexDirName))
	require.NoError(t, err)

	settings, err := r.loadSettings(ctx, r.reader())
	require.NoError(t, err)
	table, err := r.loadBranchTable(ctx, r.cas, settings)
	require.NoError(t, err)
	entry, ok := table.ByName(DefaultBranchName)
	require.True(t, ok)
	require.False(t, entry.SessionHash.IsZero())

	session, _, err := r.loadActiveSession(ctx, r.reader())
	require.NoError(t, err)
	require.Equal(t, entry.UUID, session.BranchUUID)
}

func TestInitRefusesExistingRepository(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)

	_, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)
	_, err = Init(ctx, dir, InitOptions{})
	require.Error(t, err)
}

func TestOpenRunsRecovery(t *testing.T) {
	ctx := context.Background()
	dir := newWorkDir(t)

	_, err := Init(ctx, dir, InitOptions{})
	require.NoError(t, err)

	r, err := Open(ctx, dir)
	require.NoError(t, err)
	require.NotNil(t, r)
}
