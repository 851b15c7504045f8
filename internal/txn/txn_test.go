package txn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexvcs/vex/internal/cas"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/scratch"
)

func newRepo(t *testing.T) (repoDir string, main *cas.FSStore, scr *scratch.Store) {
	repoDir = t.TempDir()
	main, err := cas.NewFSStore(filepath.Join(repoDir, "cas"))
	require.NoError(t, err)
	scr, err = scratch.Open(filepath.Join(repoDir, "scratch"))
	require.NoError(t, err)
	return repoDir, main, scr
}

func TestCommitAppliesPointersAndObjects(t *testing.T) {
	ctx := context.Background()
	repoDir, main, scr := newRepo(t)

	tx, err := Begin(ctx, repoDir, main, scr)
	require.NoError(t, err)

	h, err := tx.PutObject(ctx, []byte("hello"))
	require.NoError(t, err)
	tx.SetPointer(scratch.ActionLogHead, h)
	require.NoError(t, tx.Commit(ctx))

	got, err := main.Get(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	ptr, err := scr.Get(scratch.ActionLogHead)
	require.NoError(t, err)
	require.Equal(t, h, ptr)

	_, err = os.Stat(filepath.Join(repoDir, "pending"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(repoDir, "plan"))
	require.True(t, os.IsNotExist(err))
}

func TestAbortDiscardsStagedWrites(t *testing.T) {
	ctx := context.Background()
	repoDir, main, scr := newRepo(t)

	tx, err := Begin(ctx, repoDir, main, scr)
	require.NoError(t, err)
	h, err := tx.PutObject(ctx, []byte("discarded"))
	require.NoError(t, err)
	tx.SetPointer(scratch.ActiveSession, h)
	require.NoError(t, tx.Abort())

	ok, err := main.Has(ctx, h)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = scr.Get(scratch.ActiveSession)
	require.ErrorIs(t, err, scratch.ErrNotSet)
}

func TestGetObjectSeesStagedWrites(t *testing.T) {
	ctx := context.Background()
	repoDir, main, scr := newRepo(t)

	tx, err := Begin(ctx, repoDir, main, scr)
	require.NoError(t, err)
	h, err := tx.PutObject(ctx, []byte("staged"))
	require.NoError(t, err)

	data, err := tx.GetObject(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("staged"), data)
}

func TestRecoverRollsBackWhenCommitPointNotReached(t *testing.T) {
	ctx := context.Background()
	repoDir, main, scr := newRepo(t)

	tx, err := Begin(ctx, repoDir, main, scr)
	require.NoError(t, err)
	h, err := tx.PutObject(ctx, []byte("crash before commit point"))
	require.NoError(t, err)
	tx.SetPointer(scratch.ActionLogHead, h)

	// Simulate a crash partway: the plan is durable and pending/ holds the
	// object, but action_log_head was never swapped.
	require.NoError(t, writePlan(filepath.Join(repoDir, "plan"), planFile{
		Pointers: map[string]PointerUpdate{
			scratch.ActionLogHead: {Old: codec.Hash{}, New: h},
		},
	}))

	recovered, err := Recover(ctx, repoDir, scr)
	require.NoError(t, err)
	require.True(t, recovered)

	_, err = scr.Get(scratch.ActionLogHead)
	require.ErrorIs(t, err, scratch.ErrNotSet)

	ok, err := main.Has(ctx, h)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = os.Stat(filepath.Join(repoDir, "pending"))
	require.True(t, os.IsNotExist(err))
}

func TestRecoverFinishesForwardWhenCommitPointReached(t *testing.T) {
	ctx := context.Background()
	repoDir, main, scr := newRepo(t)

	tx, err := Begin(ctx, repoDir, main, scr)
	require.NoError(t, err)
	h, err := tx.PutObject(ctx, []byte("crash after commit point"))
	require.NoError(t, err)
	other := codec.HashBytes([]byte("session"))

	require.NoError(t, writePlan(filepath.Join(repoDir, "plan"), planFile{
		Pointers: map[string]PointerUpdate{
			scratch.ActionLogHead: {Old: codec.Hash{}, New: h},
			scratch.ActiveSession: {Old: codec.Hash{}, New: other},
		},
	}))
	// Simulate the crash landing exactly after the action_log_head swap.
	require.NoError(t, scr.Set(scratch.ActionLogHead, h))

	recovered, err := Recover(ctx, repoDir, scr)
	require.NoError(t, err)
	require.True(t, recovered)

	ok, err := main.Has(ctx, h)
	require.NoError(t, err)
	require.True(t, ok)

	ptr, err := scr.Get(scratch.ActiveSession)
	require.NoError(t, err)
	require.Equal(t, other, ptr)

	_, err = os.Stat(filepath.Join(repoDir, "plan"))
	require.True(t, os.IsNotExist(err))
}

func TestRecoverNoopWhenNoTransactionInFlight(t *testing.T) {
	ctx := context.Background()
	repoDir, _, scr := newRepo(t)

	recovered, err := Recover(ctx, repoDir, scr)
	require.NoError(t, err)
	require.False(t, recovered)
}
