package vexrepo

import (
	"context"
	"errors"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/scratch"
	"github.com/vexvcs/vex/internal/txn"
	"github.com/vexvcs/vex/internal/vexerr"
)

var errNothingToUndo = errors.New("nothing to undo")
var errNothingToRedo = errors.New("nothing to redo")

// dispatchEffect maps a logged command name back onto the effectXxx
// method that performs it, so Undo's logical-inverse step and Redo's
// re-apply step can both run a command's effect without going through
// r.mutate (which would append a new action-log entry for an undo, or the
// wrong one for a redo).
func (r *Repo) dispatchEffect(ctx context.Context, tx *txn.Transaction, command string, args []string) (*actionlog.LogicalOp, error) {
	switch command {
	case "add":
		return r.effectAdd(ctx, tx, args)
	case "forget":
		return r.effectForget(ctx, tx, args)
	case "remove":
		return r.effectRemove(ctx, tx, args)
	case "materialize":
		return r.effectMaterialize(ctx, tx, args)
	case "ignore":
		return r.editPatterns(ctx, tx, false, args)
	case "include":
		return r.editPatterns(ctx, tx, true, args)
	case "commit":
		return r.effectCommit(ctx, tx, CommitOptions{Message: firstOrEmpty(args)})
	case "commit:amend":
		return r.effectCommit(ctx, tx, CommitOptions{Message: firstOrEmpty(args), Amend: true})
	case "commit:prepare":
		return r.effectCommitPrepare(ctx, tx, firstOrEmpty(args))
	case "restore":
		return r.effectRestore(ctx, tx, args)
	case "switch":
		return r.effectSwitch(ctx, tx, firstOrEmpty(args))
	case "branch:new":
		return r.effectBranchNew(ctx, tx, firstOrEmpty(args))
	case "branch:open":
		return r.effectBranchOpen(ctx, tx, firstOrEmpty(args))
	case "branch:saveas":
		return r.effectBranchSaveas(ctx, tx, firstOrEmpty(args))
	case "branch:swap":
		if len(args) != 2 {
			return nil, vexerr.Usage("branch:swap", errors.New("requires two branch names"))
		}
		return r.effectBranchSwap(ctx, tx, args[0], args[1])
	case "branch:restore":
		return r.effectBranchRestore(ctx, tx, args)
	case "branch:forget":
		return r.effectBranchForget(ctx, tx, args)
	case "purge":
		return r.effectPurge(ctx, tx, args)
	case "fileprops:set":
		if len(args) < 1 {
			return nil, vexerr.Usage("fileprops:set", errors.New("requires a path"))
		}
		var raw string
		if len(args) > 1 {
			raw = args[1]
		}
		props, err := decodeFileProps(raw)
		if err != nil {
			return nil, err
		}
		return r.effectFilePropsSet(ctx, tx, args[0], props)
	case "init:undo":
		// spec §9: undoing init leaves .vex/ intact. Undo runs this case
		// instead of the physical restore, so it zeroes the two scratch
		// pointers init set.
		tx.SetPointer(scratch.Settings, codec.ZeroHash)
		tx.SetPointer(scratch.ActiveSession, codec.ZeroHash)
		return nil, nil
	default:
		return nil, vexerr.Domainf("dispatch", "unknown command %q", command)
	}
}

func firstOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// Undo pops the most recent action off the action log (spec §4.5): when
// the action has a logical inverse it runs that inverse, otherwise it
// restores every scratch pointer the action touched to its prior value;
// then it pushes the action onto the redo stack. Undo never appends to the
// action log itself.
func (r *Repo) Undo(ctx context.Context) error {
	if err := r.lock.AcquireExclusive(); err != nil {
		return err
	}
	defer r.lock.Release()

	tx, err := txn.Begin(ctx, r.vexDir, r.cas, r.scr)
	if err != nil {
		return err
	}
	head := tx.SnapshotOf(scratch.ActionLogHead)
	if head.IsZero() {
		tx.Abort()
		return vexerr.Domain("undo", errNothingToUndo)
	}
	recData, err := tx.GetObject(ctx, head)
	if err != nil {
		tx.Abort()
		return vexerr.Corrupt("action log", err)
	}
	rec, err := actionlog.DecodeActionRecord(recData)
	if err != nil {
		tx.Abort()
		return err
	}
	plan := actionlog.PlanUndo(rec)

	// spec §4.5: the two restoration paths are mutually exclusive. A
	// logical inverse already leaves the repository in the pre-command
	// state on its own (it's a full effect run, e.g. switch back to the
	// prior prefix); restoring the physical deltas as well would undo
	// that restoration out from under it (effectSwitch's "already at
	// this prefix" guard, for one).
	if plan.Inverse != nil {
		if _, err := r.dispatchEffect(ctx, tx, plan.Inverse.Command, plan.Inverse.Args); err != nil {
			tx.Abort()
			return err
		}
	} else {
		for _, delta := range plan.PointerRestores {
			tx.SetPointer(delta.Name, delta.Old)
		}
	}
	tx.SetPointer(scratch.ActionLogHead, plan.NewActionLogHead)

	priorRedoHead := tx.SnapshotOf(scratch.RedoStackHead)
	entry := actionlog.PushUndo(priorRedoHead, head, rec)
	entryData, entryHash, err := entry.Encode()
	if err != nil {
		tx.Abort()
		return err
	}
	if _, err := tx.PutObject(ctx, entryData); err != nil {
		tx.Abort()
		return err
	}
	tx.SetPointer(scratch.RedoStackHead, entryHash)

	return tx.Commit(ctx)
}

// Redo re-applies one alternative from the top of the redo stack (spec
// §4.5). choice is 1-indexed; 0 means "no choice given" and only succeeds
// when the top entry holds a single option.
func (r *Repo) Redo(ctx context.Context, choice int) error {
	if err := r.lock.AcquireExclusive(); err != nil {
		return err
	}
	defer r.lock.Release()

	tx, err := txn.Begin(ctx, r.vexDir, r.cas, r.scr)
	if err != nil {
		return err
	}
	redoHead := tx.SnapshotOf(scratch.RedoStackHead)
	if redoHead.IsZero() {
		tx.Abort()
		return vexerr.Domain("redo", errNothingToRedo)
	}
	entryData, err := tx.GetObject(ctx, redoHead)
	if err != nil {
		tx.Abort()
		return vexerr.Corrupt("redo stack", err)
	}
	entry, err := actionlog.DecodeRedoEntry(entryData)
	if err != nil {
		tx.Abort()
		return err
	}
	option, err := actionlog.Choose(entry, choice)
	if err != nil {
		tx.Abort()
		return vexerr.Domain("redo", err)
	}

	if option.Keep {
		// The synthetic "stay on the current line" alternative: nothing
		// to re-apply, just resolve the choice point.
		tx.SetPointer(scratch.RedoStackHead, entry.Prev)
		return tx.Commit(ctx)
	}

	actionData, err := tx.GetObject(ctx, option.ActionHash)
	if err != nil {
		tx.Abort()
		return vexerr.Corrupt("action log", err)
	}
	rec, err := actionlog.DecodeActionRecord(actionData)
	if err != nil {
		tx.Abort()
		return err
	}
	// spec §4.5: redo either forward-swaps the pointers the original
	// action touched (physical-only actions: add, commit, commit:amend,
	// purge, branch:swap) or re-runs command/args (actions whose inverse
	// is logical, e.g. switch, branch:open). Re-running a physical-only
	// action here would re-execute its effect function with a fresh
	// timestamp, producing a different object hash than the one the
	// original action wrote and breaking the undo/redo round-trip.
	if rec.Inverse != nil {
		if _, err := r.dispatchEffect(ctx, tx, rec.Command, rec.Args); err != nil {
			tx.Abort()
			return err
		}
	} else {
		for _, delta := range rec.Physical {
			tx.SetPointer(delta.Name, delta.New)
		}
	}
	// Repoint the redo stack before appendAction runs: it must not mistake
	// this pop for a fresh command that should branch the stack it is
	// itself resolving.
	tx.SetPointer(scratch.RedoStackHead, entry.Prev)
	if err := r.appendAction(ctx, tx, rec.Command, rec.Args, rec.Inverse); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit(ctx)
}

// UndoList returns the undoable history, most recent first, limit<=0 for
// everything.
func (r *Repo) UndoList(ctx context.Context, limit int) ([]actionlog.ActionRecord, error) {
	if err := r.lock.AcquireShared(); err != nil {
		return nil, err
	}
	defer r.lock.Release()
	head, err := r.scr.GetOrZero(scratch.ActionLogHead)
	if err != nil {
		return nil, vexerr.IO("undo:list", err)
	}
	return actionlog.Walk(ctx, r.cas, head, limit)
}

// RedoList returns the current redo choice point's alternatives, if any.
func (r *Repo) RedoList(ctx context.Context) (actionlog.RedoEntry, bool, error) {
	if err := r.lock.AcquireShared(); err != nil {
		return actionlog.RedoEntry{}, false, err
	}
	defer r.lock.Release()
	head, err := r.scr.GetOrZero(scratch.RedoStackHead)
	if err != nil {
		return actionlog.RedoEntry{}, false, vexerr.IO("redo:list", err)
	}
	if head.IsZero() {
		return actionlog.RedoEntry{}, false, nil
	}
	data, err := r.cas.Get(ctx, head)
	if err != nil {
		return actionlog.RedoEntry{}, false, vexerr.Corrupt("redo stack", err)
	}
	entry, err := actionlog.DecodeRedoEntry(data)
	return entry, true, err
}
