package actionlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexvcs/vex/internal/cas"
	"github.com/vexvcs/vex/internal/codec"
)

func TestAppendAndWalk(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()

	h1, err := AppendFirst(ctx, putterStore{store}, ActionRecord{Command: "add", Args: []string{"a.py"}})
	require.NoError(t, err)

	rec1, err := DecodeActionRecord(mustGet(t, store, h1))
	require.NoError(t, err)

	h2, err := Append(ctx, putterStore{store}, rec1, h1, ActionRecord{Command: "commit", Args: []string{"msg"}})
	require.NoError(t, err)

	chain, err := Walk(ctx, store, h2, 0)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, "commit msg", chain[0].Summary())
	require.Equal(t, "add a.py", chain[1].Summary())
	require.Equal(t, uint64(1), chain[0].Seq)
	require.Equal(t, uint64(0), chain[1].Seq)
}

func TestWalkLimit(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()

	h1, err := AppendFirst(ctx, putterStore{store}, ActionRecord{Command: "a"})
	require.NoError(t, err)
	rec1, err := DecodeActionRecord(mustGet(t, store, h1))
	require.NoError(t, err)
	h2, err := Append(ctx, putterStore{store}, rec1, h1, ActionRecord{Command: "b"})
	require.NoError(t, err)

	chain, err := Walk(ctx, store, h2, 1)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	require.Equal(t, "b", chain[0].Command)
}

func TestPlanUndo(t *testing.T) {
	rec := ActionRecord{
		PrevHash: codec.HashBytes([]byte("prev")),
		Physical: []PointerDelta{{Name: "active_session", Old: codec.Hash{1}, New: codec.Hash{2}}},
	}
	plan := PlanUndo(rec)
	require.Equal(t, rec.PrevHash, plan.NewActionLogHead)
	require.Equal(t, rec.Physical, plan.PointerRestores)
	require.Nil(t, plan.Inverse)
}

func TestRedoBranchingScenario(t *testing.T) {
	// Mirrors spec scenario 5: add a.py; commit; add b.py; undo; add c.py;
	// redo:list shows two alternatives.
	ctx := context.Background()
	store := cas.NewMemStore()

	hA1, err := AppendFirst(ctx, putterStore{store}, ActionRecord{Command: "add", Args: []string{"a.py"}})
	require.NoError(t, err)
	recA1, err := DecodeActionRecord(mustGet(t, store, hA1))
	require.NoError(t, err)

	hA2, err := Append(ctx, putterStore{store}, recA1, hA1, ActionRecord{Command: "commit"})
	require.NoError(t, err)
	recA2, err := DecodeActionRecord(mustGet(t, store, hA2))
	require.NoError(t, err)

	hA3, err := Append(ctx, putterStore{store}, recA2, hA2, ActionRecord{Command: "add", Args: []string{"b.py"}})
	require.NoError(t, err)
	recA3, err := DecodeActionRecord(mustGet(t, store, hA3))
	require.NoError(t, err)

	// undo: pop A3, push redo entry with one option.
	undoPlan := PlanUndo(recA3)
	require.Equal(t, hA2, undoPlan.NewActionLogHead)
	redoTop := PushUndo(codec.Hash{}, hA3, recA3)
	require.Len(t, redoTop.Options, 1)
	require.Equal(t, "add b.py", redoTop.Options[0].Summary)

	// add c.py: a new mutating command while redo is pending -> branch.
	branched := BranchRedo(redoTop, "add c.py")
	require.Len(t, branched.Options, 2)
	require.Equal(t, "add b.py", branched.Options[0].Summary)
	require.False(t, branched.Options[0].Keep)
	require.Equal(t, "add c.py", branched.Options[1].Summary)
	require.True(t, branched.Options[1].Keep)

	// redo --choice=1 re-applies add b.py.
	chosen, err := Choose(branched, 1)
	require.NoError(t, err)
	require.Equal(t, hA3, chosen.ActionHash)
	require.False(t, chosen.Keep)
}

func TestChooseAmbiguousWithoutIndex(t *testing.T) {
	entry := RedoEntry{Options: []RedoOption{{Summary: "a"}, {Summary: "b"}}}
	_, err := Choose(entry, 0)
	require.ErrorIs(t, err, ErrAmbiguousRedo)
}

func TestChooseSingleOptionDefaultsWithoutIndex(t *testing.T) {
	entry := RedoEntry{Options: []RedoOption{{Summary: "only"}}}
	opt, err := Choose(entry, 0)
	require.NoError(t, err)
	require.Equal(t, "only", opt.Summary)
}

func mustGet(t *testing.T, store *cas.MemStore, h codec.Hash) []byte {
	t.Helper()
	data, err := store.Get(context.Background(), h)
	require.NoError(t, err)
	return data
}

// putterStore adapts *cas.MemStore's Put to the Putter interface Append and
// AppendFirst expect, mirroring how *txn.Transaction exposes PutObject in
// production code.
type putterStore struct {
	*cas.MemStore
}

func (p putterStore) PutObject(ctx context.Context, data []byte) (codec.Hash, error) {
	return p.MemStore.Put(ctx, data)
}
