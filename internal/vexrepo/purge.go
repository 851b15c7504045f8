package vexrepo

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/txn"
	"github.com/vexvcs/vex/internal/vexerr"
)

// splitFirstSegment splits a slash-separated tree path into its first
// segment and the remainder; isLeaf reports whether head names a tree entry
// directly rather than something under a child directory.
func splitFirstSegment(p string) (head, rest string, isLeaf bool) {
	p = path.Clean(p)
	idx := strings.IndexByte(p, '/')
	if idx < 0 {
		return p, "", true
	}
	return p[:idx], p[idx+1:], false
}

// removeFromTree returns a copy of the tree rooted at h with the entry
// named by the slash-separated path p removed, restaging every ancestor
// tree along the way that actually changed. ok reports whether anything
// was found and removed; when it's false, h is returned unchanged.
func (r *Repo) removeFromTree(ctx context.Context, tx *txn.Transaction, h codec.Hash, p string) (codec.Hash, bool, error) {
	if h.IsZero() {
		return h, false, nil
	}
	data, err := tx.GetObject(ctx, h)
	if err != nil {
		return codec.Hash{}, false, vexerr.Corrupt("tree", err)
	}
	tree, err := objects.DecodeTree(data)
	if err != nil {
		return codec.Hash{}, false, err
	}
	head, rest, isLeaf := splitFirstSegment(p)

	var changed bool
	var out objects.Tree
	for _, e := range tree.Entries {
		if e.Name != head {
			out.Entries = append(out.Entries, e)
			continue
		}
		if isLeaf {
			changed = true
			continue
		}
		if e.Kind != objects.EntryDir {
			out.Entries = append(out.Entries, e)
			continue
		}
		childHash, childChanged, err := r.removeFromTree(ctx, tx, e.TargetHash, rest)
		if err != nil {
			return codec.Hash{}, false, err
		}
		if !childChanged {
			out.Entries = append(out.Entries, e)
			continue
		}
		changed = true
		e.TargetHash = childHash
		out.Entries = append(out.Entries, e)
	}
	if !changed {
		return h, false, nil
	}
	out.SortEntries()
	newData, newHash, err := out.Encode()
	if err != nil {
		return codec.Hash{}, false, err
	}
	if _, err := tx.PutObject(ctx, newData); err != nil {
		return codec.Hash{}, false, err
	}
	return newHash, true, nil
}

// effectPurge rewrites every commit on the active branch's chain, scrubbing
// the targeted paths from each commit's tree and re-emitting the chain
// under new hashes, then moves the branch and session heads to the
// rewritten tip (spec §4.6 `purge`; spec §8 scenario 6). Purged objects are
// not deleted outright — they simply become unreachable once the branch
// head moves off them — a later debug:gc sweep is what would actually
// reclaim them.
//
// TODO: spec also allows purge to target commits directly; only
// path-targeted purge is implemented.
func (r *Repo) effectPurge(ctx context.Context, tx *txn.Transaction, paths []string) (*actionlog.LogicalOp, error) {
	if len(paths) == 0 {
		return nil, vexerr.Usage("purge", errors.New("purge requires at least one path"))
	}
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	entry, err := r.resolveActiveBranchEntry(table, session)
	if err != nil {
		return nil, err
	}
	branch, err := r.loadBranch(ctx, tx, entry.BranchHash)
	if err != nil {
		return nil, err
	}
	if branch.HeadCommitHash.IsZero() {
		return nil, vexerr.Domain("purge", errors.New("branch has no commits"))
	}

	var chain []objects.Commit
	for h := branch.HeadCommitHash; !h.IsZero(); {
		c, err := r.loadCommit(ctx, tx, h)
		if err != nil {
			return nil, err
		}
		chain = append(chain, c)
		h = c.Parent
	}

	// chain is newest-first; rewrite oldest-first so each rewritten
	// commit's Parent already names the previous commit's new hash.
	var newParent codec.Hash
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		newRoot := c.RootTreeHash
		for _, p := range paths {
			h, _, err := r.removeFromTree(ctx, tx, newRoot, p)
			if err != nil {
				return nil, err
			}
			newRoot = h
		}
		c.Parent = newParent
		c.RootTreeHash = newRoot
		// the prior changelog entry diffs against the pre-purge tree and
		// may still mention a scrubbed path; scrub the reference too
		// instead of leaving history/log pointing at stale content.
		c.ChangelogEntryHash = codec.ZeroHash
		data, newHash, err := c.Encode()
		if err != nil {
			return nil, err
		}
		if _, err := tx.PutObject(ctx, data); err != nil {
			return nil, err
		}
		newParent = newHash
	}

	branch.HeadCommitHash = newParent
	newBranchHash, err := r.saveBranch(ctx, tx, branch)
	if err != nil {
		return nil, err
	}
	entry.BranchHash = newBranchHash
	table = table.With(entry)
	if err := r.saveBranchTable(ctx, tx, settings, table); err != nil {
		return nil, err
	}

	session.HeadCommitHash = newParent
	if err := r.saveSession(ctx, tx, session); err != nil {
		return nil, err
	}

	// Physical: the settings and active_session pointer restores an undo
	// performs already put the branch table (and so the old branch head)
	// and the session back exactly as they were.
	return nil, nil
}

// Purge rewrites the active branch's history, scrubbing paths' content from
// every commit that carries it.
func (r *Repo) Purge(ctx context.Context, paths []string) error {
	return r.mutate(ctx, "purge", paths, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectPurge(ctx, tx, paths)
	})
}

var errForgetActiveBranch = errors.New("cannot forget the active session's branch")

// effectBranchForget removes a branch's entry from the registry (a
// deregistration, distinct from `purge`'s history rewrite: nothing else
// references a forgotten branch's commits once its table row is gone, and
// the action log still makes it undoable by carrying the removed row's
// fields forward as the logical inverse's arguments, since the branch's own
// CAS objects are never actually deleted).
func (r *Repo) effectBranchForget(ctx context.Context, tx *txn.Transaction, args []string) (*actionlog.LogicalOp, error) {
	if len(args) != 1 {
		return nil, vexerr.Usage("branch:forget", errors.New("branch:forget takes exactly one branch name"))
	}
	name := args[0]
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	entry, ok := table.ByName(name)
	if !ok {
		return nil, vexerr.Domainf("branch:forget", "no such branch: %s", name)
	}
	if entry.UUID == session.BranchUUID {
		return nil, vexerr.Domain("branch:forget", errForgetActiveBranch)
	}
	table = table.WithoutUUID(entry.UUID)
	if err := r.saveBranchTable(ctx, tx, settings, table); err != nil {
		return nil, err
	}
	return &actionlog.LogicalOp{
		Command: "branch:restore",
		Args:    []string{entry.UUID, entry.Name, entry.BranchHash.String(), entry.SessionHash.String()},
	}, nil
}

// BranchForget permanently unregisters a branch.
func (r *Repo) BranchForget(ctx context.Context, name string) error {
	return r.mutate(ctx, "branch:forget", []string{name}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectBranchForget(ctx, tx, []string{name})
	})
}

// effectBranchRestore reinstates a branch table row branch:forget removed;
// it is reached only as branch:forget's undo inverse, never directly from
// the command layer.
func (r *Repo) effectBranchRestore(ctx context.Context, tx *txn.Transaction, args []string) (*actionlog.LogicalOp, error) {
	if len(args) != 4 {
		return nil, vexerr.Usage("branch:restore", errors.New("malformed inverse arguments"))
	}
	branchHash, err := codec.ParseHash(args[2])
	if err != nil {
		return nil, vexerr.Corrupt("branch:restore", err)
	}
	sessionHash, err := codec.ParseHash(args[3])
	if err != nil {
		return nil, vexerr.Corrupt("branch:restore", err)
	}
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	table = table.With(objects.BranchTableEntry{UUID: args[0], Name: args[1], BranchHash: branchHash, SessionHash: sessionHash})
	if err := r.saveBranchTable(ctx, tx, settings, table); err != nil {
		return nil, err
	}
	return nil, nil
}
