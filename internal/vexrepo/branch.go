package vexrepo

import (
	"bytes"
	"context"
	"errors"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"go.brendoncarroll.net/state/posixfs"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/scratch"
	"github.com/vexvcs/vex/internal/txn"
	"github.com/vexvcs/vex/internal/vexerr"
)

var errBranchNameTaken = errors.New("branch name already registered")
var errNoActiveBranch = errors.New("active session's branch is not registered")

// saveSettings stages a new Settings object and repoints the settings
// pointer.
func (r *Repo) saveSettings(ctx context.Context, tx *txn.Transaction, s objects.Settings) error {
	data, h, err := s.Encode()
	if err != nil {
		return err
	}
	if _, err := tx.PutObject(ctx, data); err != nil {
		return err
	}
	tx.SetPointer(scratch.Settings, h)
	return nil
}

// saveBranchTable stages table, folds its hash into settings, and stages
// the resulting Settings object.
func (r *Repo) saveBranchTable(ctx context.Context, tx *txn.Transaction, settings objects.Settings, table objects.BranchTable) error {
	data, h, err := table.Encode()
	if err != nil {
		return err
	}
	if _, err := tx.PutObject(ctx, data); err != nil {
		return err
	}
	settings.BranchTableHash = h
	return r.saveSettings(ctx, tx, settings)
}

// saveBranch stages a new Branch object and returns its hash. Unlike
// sessions and settings, a Branch is reached only through the branch
// table, so saving it doesn't move any scratch pointer by itself.
func (r *Repo) saveBranch(ctx context.Context, tx *txn.Transaction, b objects.Branch) (codec.Hash, error) {
	data, h, err := b.Encode()
	if err != nil {
		return codec.Hash{}, err
	}
	if _, err := tx.PutObject(ctx, data); err != nil {
		return codec.Hash{}, err
	}
	return h, nil
}

// stashCurrentSession snapshots session's uncommitted manifest into a
// StashEntry and clears it, returning the updated session (spec's stash
// protocol for branch switches: uncommitted work survives the switch).
func (r *Repo) stashCurrentSession(ctx context.Context, tx *txn.Transaction, session objects.Session) (objects.Session, error) {
	if session.WorkingManifestHash.IsZero() {
		return session, nil
	}
	stash := objects.StashEntry{SessionUUID: session.UUID, ManifestHash: session.WorkingManifestHash}
	data, h, err := stash.Encode()
	if err != nil {
		return session, err
	}
	if _, err := tx.PutObject(ctx, data); err != nil {
		return session, err
	}
	session.StashManifestHash = h
	session.WorkingManifestHash = codec.ZeroHash
	return session, nil
}

// unstashSession restores a previously stashed manifest onto session, if
// it is carrying one.
func (r *Repo) unstashSession(ctx context.Context, tx *txn.Transaction, session objects.Session) (objects.Session, error) {
	if session.StashManifestHash.IsZero() {
		return session, nil
	}
	data, err := tx.GetObject(ctx, session.StashManifestHash)
	if err != nil {
		return session, vexerr.Corrupt("stash", err)
	}
	stash, err := objects.DecodeStashEntry(data)
	if err != nil {
		return session, err
	}
	session.WorkingManifestHash = stash.ManifestHash
	session.StashManifestHash = codec.ZeroHash
	return session, nil
}

// resolveActiveBranchEntry looks up the branch table entry for session's
// branch.
func (r *Repo) resolveActiveBranchEntry(table objects.BranchTable, session objects.Session) (objects.BranchTableEntry, error) {
	entry, ok := table.ByUUID(session.BranchUUID)
	if !ok {
		return objects.BranchTableEntry{}, vexerr.Domain("branch", errNoActiveBranch)
	}
	return entry, nil
}

// effectBranchOpenExisting moves the active session onto the already
// registered branch named name, stashing the current session's
// uncommitted work and resuming (or creating) the target branch's session.
// This is branch:open's work once the saveas-if-missing step is done; it
// shares no logic with `switch`, which only ever changes the active
// session's checkout prefix.
func (r *Repo) effectBranchOpenExisting(ctx context.Context, tx *txn.Transaction, name string) (*actionlog.LogicalOp, error) {
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
	curEntry, err := r.resolveActiveBranchEntry(table, session)
	if err != nil {
		return nil, err
	}
	targetEntry, ok := table.ByName(name)
	if !ok {
		return nil, vexerr.Domainf("branch:open", "no such branch: %s", name)
	}

	session, err = r.stashCurrentSession(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	curSessionData, curSessionHash, err := session.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, curSessionData); err != nil {
		return nil, err
	}
	curEntry.SessionHash = curSessionHash
	table = table.With(curEntry)

	var target objects.Session
	if !targetEntry.SessionHash.IsZero() {
		data, err := tx.GetObject(ctx, targetEntry.SessionHash)
		if err != nil {
			return nil, vexerr.Corrupt("session", err)
		}
		target, err = objects.DecodeSession(data)
		if err != nil {
			return nil, err
		}
	} else {
		targetBranch, err := r.loadBranch(ctx, tx, targetEntry.BranchHash)
		if err != nil {
			return nil, err
		}
		target = objects.Session{
			UUID:           uuid.NewString(),
			BranchUUID:     targetEntry.UUID,
			HeadCommitHash: targetBranch.HeadCommitHash,
			Prefix:         session.Prefix,
			Mode:           objects.SessionAttached,
		}
	}
	target, err = r.unstashSession(ctx, tx, target)
	if err != nil {
		return nil, err
	}
	targetData, targetHash, err := target.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, targetData); err != nil {
		return nil, err
	}
	targetEntry.SessionHash = targetHash
	table = table.With(targetEntry)

	if err := r.saveBranchTable(ctx, tx, settings, table); err != nil {
		return nil, err
	}
	tx.SetPointer(scratch.ActiveSession, targetHash)

	// branch:open's physical pointer restore alone would flip active_session
	// back, but the stash/unstash it performed along the way isn't
	// reversible by that restore (the prior session object it restores to
	// no longer matches what's now stashed on the other branch); the
	// inverse just re-opens the branch just left.
	prevEntry, _ := table.ByUUID(curEntry.UUID)
	return &actionlog.LogicalOp{Command: "branch:open", Args: []string{prevEntry.Name}}, nil
}

// effectSwitch narrows or widens the active session's checkout to the
// subtree of HEAD's tree rooted at newPrefix: any uncommitted work is
// stashed, the working copy is cleared of everything currently checked
// out, and newPrefix's subtree is materialized fresh in its place (spec
// §4.6 `switch (prefix)`).
func (r *Repo) effectSwitch(ctx context.Context, tx *txn.Transaction, newPrefix string) (*actionlog.LogicalOp, error) {
	newPrefix = path.Clean(filepath.ToSlash(newPrefix))
	if newPrefix == "." {
		newPrefix = ""
	}
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	oldPrefix := session.Prefix
	if newPrefix == oldPrefix {
		return nil, vexerr.Domainf("switch", "already at prefix %q", newPrefix)
	}

	var subtreeHash codec.Hash
	if !session.HeadCommitHash.IsZero() {
		commit, err := r.loadCommit(ctx, tx, session.HeadCommitHash)
		if err != nil {
			return nil, err
		}
		if newPrefix == "" {
			subtreeHash = commit.RootTreeHash
		} else {
			entry, terr := r.resolveTreePath(ctx, tx, commit.RootTreeHash, newPrefix)
			if errors.Is(terr, errNoSuchPathInTree) {
				return nil, vexerr.Domainf("switch", "no such path in HEAD: %s", newPrefix)
			}
			if terr != nil {
				return nil, terr
			}
			if entry.Kind != objects.EntryDir && entry.Kind != objects.EntryEmptyDir {
				return nil, vexerr.Domainf("switch", "not a directory: %s", newPrefix)
			}
			subtreeHash = entry.TargetHash
		}
	}

	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	working, err := r.listWorkingFiles(ctx, settings)
	if err != nil {
		return nil, err
	}

	// Stash uncommitted work before tearing down the old prefix's working
	// copy — it isn't reachable from HEAD's tree, so deleting it outright
	// would lose it.
	session, err = r.stashCurrentSession(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	for _, p := range working {
		if err := r.wfs.Remove(p); err != nil && !posixfs.IsErrNotExist(err) {
			return nil, vexerr.IO("switch remove "+p, err)
		}
	}

	subtree := map[string]objects.TreeEntry{}
	if err := r.flattenTree(ctx, tx, subtreeHash, "", subtree); err != nil {
		return nil, err
	}
	manifest := objects.Manifest{}
	for p, te := range subtree {
		if te.Kind != objects.EntryFile {
			continue
		}
		fileData, err := tx.GetObject(ctx, te.TargetHash)
		if err != nil {
			return nil, vexerr.Corrupt("file "+p, err)
		}
		file, err := objects.DecodeFile(fileData)
		if err != nil {
			return nil, err
		}
		blobData, err := tx.GetObject(ctx, file.BlobHash)
		if err != nil {
			return nil, vexerr.Corrupt("blob "+p, err)
		}
		content, err := codec.DecodeBlob(blobData)
		if err != nil {
			return nil, err
		}
		if err := posixfs.PutFile(ctx, r.wfs, p, 0o644, bytes.NewReader(content)); err != nil {
			return nil, vexerr.IO("switch materialize "+p, err)
		}
		manifest = manifest.With(objects.ManifestEntry{
			Path:       p,
			Kind:       objects.EntryFile,
			Hash:       te.TargetHash,
			Properties: te.Properties,
			Status:     objects.TrackUnchanged,
			MTime:      r.now(),
			Size:       int64(len(content)),
		})
	}
	manifestData, manifestHash, err := manifest.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, manifestData); err != nil {
		return nil, err
	}
	session.Prefix = newPrefix
	session.WorkingManifestHash = manifestHash
	if err := r.saveSession(ctx, tx, session); err != nil {
		return nil, err
	}

	// The old prefix's working copy has already been deleted from disk, so
	// a plain pointer restore can't bring it back; the inverse re-runs
	// switch against the prefix just left.
	return &actionlog.LogicalOp{Command: "switch", Args: []string{oldPrefix}}, nil
}

// Switch narrows or widens the active session's checkout to the subtree of
// HEAD rooted at prefix.
func (r *Repo) Switch(ctx context.Context, prefix string) error {
	return r.mutate(ctx, "switch", []string{prefix}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectSwitch(ctx, tx, prefix)
	})
}

// effectBranchNew registers a new, empty-history branch (spec `branch:new`).
func (r *Repo) effectBranchNew(ctx context.Context, tx *txn.Transaction, name string) (*actionlog.LogicalOp, error) {
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	if _, ok := table.ByName(name); ok {
		return nil, vexerr.Domain("branch:new", errBranchNameTaken)
	}
	branch := objects.Branch{UUID: uuid.NewString(), Name: name}
	branchHash, err := r.saveBranch(ctx, tx, branch)
	if err != nil {
		return nil, err
	}
	table = table.With(objects.BranchTableEntry{UUID: branch.UUID, Name: name, BranchHash: branchHash})
	if err := r.saveBranchTable(ctx, tx, settings, table); err != nil {
		return nil, err
	}
	return nil, nil
}

// BranchNew registers a new branch with no commits.
func (r *Repo) BranchNew(ctx context.Context, name string) error {
	return r.mutate(ctx, "branch:new", []string{name}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectBranchNew(ctx, tx, name)
	})
}

// effectBranchSaveas forks the active branch's current head into a new
// branch name, leaving the active session on the original branch (spec
// `branch:saveas`).
func (r *Repo) effectBranchSaveas(ctx context.Context, tx *txn.Transaction, name string) (*actionlog.LogicalOp, error) {
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
	curEntry, err := r.resolveActiveBranchEntry(table, session)
	if err != nil {
		return nil, err
	}
	if _, ok := table.ByName(name); ok {
		return nil, vexerr.Domain("branch:saveas", errBranchNameTaken)
	}
	curBranch, err := r.loadBranch(ctx, tx, curEntry.BranchHash)
	if err != nil {
		return nil, err
	}
	newBranch := objects.Branch{
		UUID:           uuid.NewString(),
		Name:           name,
		HeadCommitHash: curBranch.HeadCommitHash,
		BaseCommitHash: curBranch.HeadCommitHash,
	}
	newBranchHash, err := r.saveBranch(ctx, tx, newBranch)
	if err != nil {
		return nil, err
	}
	table = table.With(objects.BranchTableEntry{UUID: newBranch.UUID, Name: name, BranchHash: newBranchHash})
	if err := r.saveBranchTable(ctx, tx, settings, table); err != nil {
		return nil, err
	}
	return nil, nil
}

// BranchSaveas forks the active branch into a new named branch without
// switching to it.
func (r *Repo) BranchSaveas(ctx context.Context, name string) error {
	return r.mutate(ctx, "branch:saveas", []string{name}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectBranchSaveas(ctx, tx, name)
	})
}

// effectBranchOpen attaches the active session to name, creating it first
// (forked from the active branch's head) if it doesn't already exist — the
// one-step combination of branch:saveas + the branch-to-branch move the
// command catalog exposes directly (spec §4.6 `branch:open`).
func (r *Repo) effectBranchOpen(ctx context.Context, tx *txn.Transaction, name string) (*actionlog.LogicalOp, error) {
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	if _, ok := table.ByName(name); !ok {
		if _, err := r.effectBranchSaveas(ctx, tx, name); err != nil {
			return nil, err
		}
	}
	return r.effectBranchOpenExisting(ctx, tx, name)
}

// BranchOpen switches to (creating if necessary) the named branch.
func (r *Repo) BranchOpen(ctx context.Context, name string) error {
	return r.mutate(ctx, "branch:open", []string{name}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectBranchOpen(ctx, tx, name)
	})
}

// effectBranchSwap exchanges the Name of two registered branches (spec's
// supplemented branch-rename dance: swap two names atomically rather than
// needing a temporary third name).
func (r *Repo) effectBranchSwap(ctx context.Context, tx *txn.Transaction, nameA, nameB string) (*actionlog.LogicalOp, error) {
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	a, ok := table.ByName(nameA)
	if !ok {
		return nil, vexerr.Domainf("branch:swap", "no such branch: %s", nameA)
	}
	b, ok := table.ByName(nameB)
	if !ok {
		return nil, vexerr.Domainf("branch:swap", "no such branch: %s", nameB)
	}
	a.Name, b.Name = b.Name, a.Name
	table = table.With(a)
	table = table.With(b)
	if err := r.saveBranchTable(ctx, tx, settings, table); err != nil {
		return nil, err
	}
	// inverse: physical (swap back) — the branch table row swap is fully
	// captured by the touched settings pointer, which anchors the branch
	// table, so undo
	// restores it without re-running the swap.
	return nil, nil
}

// BranchSwap exchanges the names of two registered branches.
func (r *Repo) BranchSwap(ctx context.Context, nameA, nameB string) error {
	return r.mutate(ctx, "branch:swap", []string{nameA, nameB}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectBranchSwap(ctx, tx, nameA, nameB)
	})
}
