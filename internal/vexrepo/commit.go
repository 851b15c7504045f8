package vexrepo

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/exp/slices"

	"go.brendoncarroll.net/tai64"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/scratch"
	"github.com/vexvcs/vex/internal/txn"
	"github.com/vexvcs/vex/internal/vexerr"
)

// treeNode is one directory of the trie built from a flat Manifest's paths,
// used to materialize the nested Tree objects a Commit's root_tree_hash
// points into (spec §3: trees are the nested, Commit is flat-manifest's
// hierarchical counterpart).
type treeNode struct {
	entry    *objects.ManifestEntry
	children map[string]*treeNode
}

func newTreeNode() *treeNode { return &treeNode{children: make(map[string]*treeNode)} }

func (n *treeNode) insert(parts []string, e objects.ManifestEntry) {
	if len(parts) == 1 {
		if n.children[parts[0]] == nil {
			n.children[parts[0]] = newTreeNode()
		}
		ec := e
		n.children[parts[0]].entry = &ec
		return
	}
	if n.children[parts[0]] == nil {
		n.children[parts[0]] = newTreeNode()
	}
	n.children[parts[0]].insert(parts[1:], e)
}

// buildTree recursively encodes n's children into a Tree object, staging
// every Tree and returning the root's hash.
func (r *Repo) buildTree(ctx context.Context, tx *txn.Transaction, n *treeNode) (codec.Hash, error) {
	var names []string
	for name := range n.children {
		names = append(names, name)
	}
	slices.Sort(names)

	tree := objects.Tree{}
	for _, name := range names {
		child := n.children[name]
		if child.entry != nil && len(child.children) == 0 {
			tree.Entries = append(tree.Entries, objects.TreeEntry{
				Name:       name,
				Kind:       child.entry.Kind,
				TargetHash: child.entry.Hash,
				Properties: child.entry.Properties,
			})
			continue
		}
		if len(child.children) == 0 {
			// an entry with no children and no file content: an empty
			// directory placeholder.
			tree.Entries = append(tree.Entries, objects.TreeEntry{Name: name, Kind: objects.EntryEmptyDir})
			continue
		}
		childHash, err := r.buildTree(ctx, tx, child)
		if err != nil {
			return codec.Hash{}, err
		}
		tree.Entries = append(tree.Entries, objects.TreeEntry{Name: name, Kind: objects.EntryDir, TargetHash: childHash})
	}
	tree.SortEntries()
	data, h, err := tree.Encode()
	if err != nil {
		return codec.Hash{}, err
	}
	if _, err := tx.PutObject(ctx, data); err != nil {
		return codec.Hash{}, err
	}
	return h, nil
}

// manifestToTree builds the root Tree for every non-deleted entry of m,
// laid over the files of the base tree: a base file m has no entry for is
// carried over unchanged, a Deleted entry drops the path.
func (r *Repo) manifestToTree(ctx context.Context, tx *txn.Transaction, base codec.Hash, m objects.Manifest) (codec.Hash, error) {
	baseFiles := map[string]objects.TreeEntry{}
	if err := r.flattenTree(ctx, tx, base, "", baseFiles); err != nil {
		return codec.Hash{}, err
	}
	for p, te := range baseFiles {
		if _, ok := m.Find(p); !ok {
			m = m.With(objects.ManifestEntry{Path: p, Kind: te.Kind, Hash: te.TargetHash, Properties: te.Properties, Status: objects.TrackUnchanged})
		}
	}
	root := newTreeNode()
	for _, e := range m.Entries {
		if e.Status == objects.TrackDeleted {
			continue
		}
		root.insert(strings.Split(e.Path, "/"), e)
	}
	if len(root.children) == 0 {
		return codec.ZeroHash, nil
	}
	return r.buildTree(ctx, tx, root)
}

func changeOpKind(s objects.TrackStatus) string {
	switch s {
	case objects.TrackAdded:
		return "added"
	case objects.TrackModified:
		return "modified"
	case objects.TrackDeleted:
		return "removed"
	default:
		return "modified"
	}
}

// CommitOptions configures `commit` (spec §4.6).
type CommitOptions struct {
	Message string
	Amend   bool
}

// effectCommit folds the session's working manifest into a new Commit on
// the active branch, advances the branch and session heads, and clears the
// working manifest (everything in it is now part of HEAD).
func (r *Repo) effectCommit(ctx context.Context, tx *txn.Transaction, opts CommitOptions) (*actionlog.LogicalOp, error) {
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}

	if !opts.Amend && !session.PreparedCommitHash.IsZero() {
		return r.promotePreparedCommit(ctx, tx, settings, session)
	}

	manifest, err := r.loadWorkingManifest(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	if len(manifest.Entries) == 0 && !opts.Amend {
		return nil, vexerr.Domain("commit", errNothingToCommit)
	}

	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	entry, ok := table.ByUUID(session.BranchUUID)
	if !ok {
		return nil, vexerr.Domain("commit", errBranchNotFound)
	}
	branch, err := r.loadBranch(ctx, tx, entry.BranchHash)
	if err != nil {
		return nil, err
	}

	var parent codec.Hash
	var prevChangelog codec.Hash
	var baseTree codec.Hash
	kind := objects.CommitNormal
	now := r.now()
	msg := opts.Message
	if opts.Amend {
		if branch.HeadCommitHash.IsZero() {
			return nil, vexerr.Domain("commit:amend", errNoCommitToAmend)
		}
		prior, err := r.loadCommit(ctx, tx, branch.HeadCommitHash)
		if err != nil {
			return nil, err
		}
		parent = prior.Parent
		prevChangelog = prior.ChangelogEntryHash // chained past the commit being replaced
		baseTree = prior.RootTreeHash
		kind = objects.CommitAmend
		if msg == "" {
			msg = prior.Message
		}
	} else {
		parent = branch.HeadCommitHash
		if !parent.IsZero() {
			prior, err := r.loadCommit(ctx, tx, parent)
			if err != nil {
				return nil, err
			}
			prevChangelog = prior.ChangelogEntryHash
			baseTree = prior.RootTreeHash
		}
	}

	rootHash, err := r.manifestToTree(ctx, tx, baseTree, manifest)
	if err != nil {
		return nil, err
	}

	var ops []objects.ChangeOp
	for _, e := range manifest.Entries {
		ops = append(ops, objects.ChangeOp{Path: e.Path, Kind: changeOpKind(e.Status)})
	}
	changelog := objects.ChangelogEntry{PrevChangelogHash: prevChangelog, Ops: ops}
	changelogData, changelogHash, err := changelog.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, changelogData); err != nil {
		return nil, err
	}

	commit := objects.Commit{
		Parent:             parent,
		RootTreeHash:       rootHash,
		AuthorUUID:         settings.AuthorUUID,
		TimestampApplied:   now,
		TimestampWritten:   now,
		Message:            msg,
		ChangelogEntryHash: changelogHash,
		Kind:               kind,
	}
	commitData, commitHash, err := commit.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, commitData); err != nil {
		return nil, err
	}

	branch.HeadCommitHash = commitHash
	branchData, branchHash, err := branch.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, branchData); err != nil {
		return nil, err
	}
	table = table.With(objects.BranchTableEntry{UUID: branch.UUID, Name: branch.Name, BranchHash: branchHash})
	tableData, tableHash, err := table.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, tableData); err != nil {
		return nil, err
	}
	settings.BranchTableHash = tableHash
	settingsData, settingsHash, err := settings.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, settingsData); err != nil {
		return nil, err
	}
	tx.SetPointer(scratch.Settings, settingsHash)

	session.HeadCommitHash = commitHash
	session.WorkingManifestHash = codec.ZeroHash
	session.PreparedCommitHash = codec.ZeroHash
	if err := r.saveSession(ctx, tx, session); err != nil {
		return nil, err
	}
	return nil, nil
}

// promotePreparedCommit applies the Commit object commit:prepare already
// wrote to CAS, stamping it applied and advancing the branch and session
// heads to it, instead of folding the working manifest into a fresh
// Commit (spec §4.6: "a subsequent commit promotes it").
func (r *Repo) promotePreparedCommit(ctx context.Context, tx *txn.Transaction, settings objects.Settings, session objects.Session) (*actionlog.LogicalOp, error) {
	prepared, err := r.loadCommit(ctx, tx, session.PreparedCommitHash)
	if err != nil {
		return nil, err
	}
	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	entry, ok := table.ByUUID(session.BranchUUID)
	if !ok {
		return nil, vexerr.Domain("commit", errBranchNotFound)
	}
	branch, err := r.loadBranch(ctx, tx, entry.BranchHash)
	if err != nil {
		return nil, err
	}

	prepared.TimestampApplied = r.now()
	commitData, commitHash, err := prepared.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, commitData); err != nil {
		return nil, err
	}

	branch.HeadCommitHash = commitHash
	branchData, branchHash, err := branch.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, branchData); err != nil {
		return nil, err
	}
	table = table.With(objects.BranchTableEntry{UUID: branch.UUID, Name: branch.Name, BranchHash: branchHash})
	tableData, tableHash, err := table.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, tableData); err != nil {
		return nil, err
	}
	settings.BranchTableHash = tableHash
	settingsData, settingsHash, err := settings.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, settingsData); err != nil {
		return nil, err
	}
	tx.SetPointer(scratch.Settings, settingsHash)

	session.HeadCommitHash = commitHash
	session.WorkingManifestHash = codec.ZeroHash
	session.PreparedCommitHash = codec.ZeroHash
	if err := r.saveSession(ctx, tx, session); err != nil {
		return nil, err
	}
	return nil, nil
}

// Commit folds staged changes into a new commit on the active branch.
func (r *Repo) Commit(ctx context.Context, opts CommitOptions) error {
	cmd := "commit"
	if opts.Amend {
		cmd = "commit:amend"
	}
	return r.mutate(ctx, cmd, []string{opts.Message}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectCommit(ctx, tx, opts)
	})
}

// effectCommitPrepare stages the working manifest into a not-yet-applied
// Commit object and records it on the session without advancing the branch
// (spec §4.6's two-step commit): a later plain commit promotes it, while
// commit:amend ignores it and builds a fresh commit.
func (r *Repo) effectCommitPrepare(ctx context.Context, tx *txn.Transaction, message string) (*actionlog.LogicalOp, error) {
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	manifest, err := r.loadWorkingManifest(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	if len(manifest.Entries) == 0 {
		return nil, vexerr.Domain("commit:prepare", errNothingToCommit)
	}

	table, err := r.loadBranchTable(ctx, tx, settings)
	if err != nil {
		return nil, err
	}
	entry, ok := table.ByUUID(session.BranchUUID)
	if !ok {
		return nil, vexerr.Domain("commit:prepare", errBranchNotFound)
	}
	branch, err := r.loadBranch(ctx, tx, entry.BranchHash)
	if err != nil {
		return nil, err
	}
	parent := branch.HeadCommitHash
	var prevChangelog codec.Hash
	var baseTree codec.Hash
	if !parent.IsZero() {
		prior, err := r.loadCommit(ctx, tx, parent)
		if err != nil {
			return nil, err
		}
		prevChangelog = prior.ChangelogEntryHash
		baseTree = prior.RootTreeHash
	}

	rootHash, err := r.manifestToTree(ctx, tx, baseTree, manifest)
	if err != nil {
		return nil, err
	}
	var ops []objects.ChangeOp
	for _, e := range manifest.Entries {
		ops = append(ops, objects.ChangeOp{Path: e.Path, Kind: changeOpKind(e.Status)})
	}
	changelog := objects.ChangelogEntry{PrevChangelogHash: prevChangelog, Ops: ops}
	changelogData, changelogHash, err := changelog.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, changelogData); err != nil {
		return nil, err
	}

	now := r.now()
	commit := objects.Commit{
		Parent:             parent,
		RootTreeHash:       rootHash,
		AuthorUUID:         settings.AuthorUUID,
		TimestampApplied:   tai64.TAI64(0),
		TimestampWritten:   now,
		Message:            message,
		ChangelogEntryHash: changelogHash,
		Kind:               objects.CommitApply,
	}
	data, h, err := commit.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, data); err != nil {
		return nil, err
	}
	session.PreparedCommitHash = h
	if err := r.saveSession(ctx, tx, session); err != nil {
		return nil, err
	}
	return nil, nil
}

// CommitPrepare stages the working manifest as a prepared, not-yet-applied
// commit.
func (r *Repo) CommitPrepare(ctx context.Context, message string) error {
	return r.mutate(ctx, "commit:prepare", []string{message}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectCommitPrepare(ctx, tx, message)
	})
}

func (r *Repo) loadCommit(ctx context.Context, g actionlog.Getter, h codec.Hash) (objects.Commit, error) {
	data, err := g.Get(ctx, h)
	if err != nil {
		return objects.Commit{}, vexerr.Corrupt("commit", err)
	}
	return objects.DecodeCommit(data)
}

var errNothingToCommit = errors.New("nothing staged to commit")
var errBranchNotFound = errors.New("active branch not found in branch table")
var errNoCommitToAmend = errors.New("no commit on the active branch to amend")
