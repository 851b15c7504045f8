// Package vexrepo implements the project model from spec §4.6: the fixed
// command catalog built on top of the CAS, scratch store, transaction
// layer, and action log. Every mutating command opens exactly one
// transaction, stages its objects and pointer updates, and appends exactly
// one ActionRecord on commit.
package vexrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.brendoncarroll.net/state/posixfs"
	"go.brendoncarroll.net/tai64"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/cas"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/lockfile"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/scratch"
	"github.com/vexvcs/vex/internal/txn"
	"github.com/vexvcs/vex/internal/vexerr"
)

// VexDirName is the fixed scaffold directory name under a repository's
// working directory (spec §6).
const VexDirName = ".vex"

// DefaultBranchName is the branch `init` creates (spec §4.6: "`latest`
// (or `master` when using a compatibility mode)"). Vex always uses the
// non-compatibility name.
const DefaultBranchName = "latest"

// Repo binds a working directory to its .vex scaffold.
type Repo struct {
	workDir string
	vexDir  string

	cas  cas.Store
	scr  *scratch.Store
	lock *lockfile.Lock
	wfs  posixfs.FS

	// FakeMode runs every mutating command through the full transaction
	// protocol but always aborts at the end (spec §4.7 `fake`).
	FakeMode bool
	// DebugMode suppresses the automatic abort on DomainError (spec §4.7
	// `debug`), leaving the half-applied staged state for inspection.
	DebugMode bool
}

// Open binds to an already-initialized repository at workDir, running
// crash recovery first (spec §4.4 "Recovery on startup").
func Open(ctx context.Context, workDir string) (*Repo, error) {
	vexDir := filepath.Join(workDir, VexDirName)
	if _, err := os.Stat(vexDir); err != nil {
		return nil, vexerr.Usage("open", fmt.Errorf("not a vex repository: %s", workDir))
	}
	r, err := newRepo(workDir)
	if err != nil {
		return nil, err
	}
	recovered, err := txn.Recover(ctx, r.vexDir, r.scr)
	if err != nil {
		return nil, vexerr.RecoverableHalt("open", err)
	}
	if recovered {
		logctx.Infof(ctx, "recovered an interrupted transaction")
	}
	return r, nil
}

// casCacheSize bounds the in-memory object cache every Repo reads
// through: commands like status, history, and restore re-fetch the same
// trees and commits repeatedly while walking a branch's chain.
const casCacheSize = 4096

func newRepo(workDir string) (*Repo, error) {
	vexDir := filepath.Join(workDir, VexDirName)
	fsStore, err := cas.NewFSStore(filepath.Join(vexDir, "cas"))
	if err != nil {
		return nil, vexerr.IO("open", err)
	}
	casStore := cas.NewCaching(fsStore, casCacheSize)
	scr, err := scratch.Open(filepath.Join(vexDir, "scratch"))
	if err != nil {
		return nil, vexerr.IO("open", err)
	}
	wfs := posixfs.NewFiltered(posixfs.NewDirFS(workDir), func(p string) bool {
		return p != VexDirName && !strings.HasPrefix(p, VexDirName+"/")
	})
	return &Repo{
		workDir: workDir,
		vexDir:  vexDir,
		cas:     casStore,
		scr:     scr,
		lock:    lockfile.Open(vexDir),
		wfs:     wfs,
	}, nil
}

// InitOptions configures `init` (spec §4.6).
type InitOptions struct {
	Include []string
	Ignore  []string
}

// Init materializes a new repository's scaffold: CAS and scratch
// directories, a Settings object, an empty initial Commit, the initial
// Branch (DefaultBranchName), and a Session attached to it with
// prefix = basename(path) (spec §4.6).
func Init(ctx context.Context, workDir string, opts InitOptions) (*Repo, error) {
	vexDir := filepath.Join(workDir, VexDirName)
	if _, err := os.Stat(vexDir); err == nil {
		return nil, vexerr.Domain("init", fmt.Errorf("repository already exists at %s", workDir))
	}
	if err := os.MkdirAll(vexDir, 0o755); err != nil {
		return nil, vexerr.IO("init", err)
	}
	r, err := newRepo(workDir)
	if err != nil {
		return nil, err
	}

	now := tai64.Now().TAI64()
	authorUUID := uuid.NewString()
	settings := objects.Settings{
		IncludePatterns: opts.Include,
		IgnorePatterns:  opts.Ignore,
		AuthorUUID:      authorUUID,
	}
	branchUUID := uuid.NewString()
	commit := objects.Commit{
		RootTreeHash:     codec.ZeroHash,
		AuthorUUID:       authorUUID,
		TimestampApplied: now,
		TimestampWritten: now,
		Message:          "init",
		Kind:             objects.CommitInit,
	}
	branch := objects.Branch{UUID: branchUUID, Name: DefaultBranchName}
	session := objects.Session{
		UUID:       uuid.NewString(),
		BranchUUID: branchUUID,
		Prefix:     filepath.Base(filepath.Clean(workDir)),
		Mode:       objects.SessionAttached,
	}

	tx, err := txn.Begin(ctx, r.vexDir, r.cas, r.scr)
	if err != nil {
		return nil, err
	}
	commitData, commitHash, err := commit.Encode()
	if err != nil {
		tx.Abort()
		return nil, err
	}
	branch.HeadCommitHash = commitHash
	session.HeadCommitHash = commitHash
	sessionData, sessionHash, err := session.Encode()
	if err != nil {
		tx.Abort()
		return nil, err
	}
	branchData, branchHash, err := branch.Encode()
	if err != nil {
		tx.Abort()
		return nil, err
	}
	table := objects.BranchTable{}
	table = table.With(objects.BranchTableEntry{UUID: branchUUID, Name: branch.Name, BranchHash: branchHash, SessionHash: sessionHash})
	tableData, tableHash, err := table.Encode()
	if err != nil {
		tx.Abort()
		return nil, err
	}
	settings.BranchTableHash = tableHash
	settingsData, settingsHash, err := settings.Encode()
	if err != nil {
		tx.Abort()
		return nil, err
	}
	for _, data := range [][]byte{commitData, branchData, tableData, settingsData, sessionData} {
		if _, err := tx.PutObject(ctx, data); err != nil {
			tx.Abort()
			return nil, err
		}
	}
	tx.SetPointer(scratch.Settings, settingsHash)
	tx.SetPointer(scratch.ActiveSession, sessionHash)

	rec := actionlog.ActionRecord{
		Command:   "init",
		Args:      []string{workDir},
		Author:    authorUUID,
		CreatedAt: now,
		Physical: []actionlog.PointerDelta{
			{Name: scratch.Settings, Old: codec.ZeroHash, New: settingsHash},
			{Name: scratch.ActiveSession, Old: codec.ZeroHash, New: sessionHash},
		},
		// init's inverse is logical (spec §4.6): init:undo zeroes the
		// settings and active_session pointers and leaves .vex/ and the
		// objects stored in it in place.
		Inverse: &actionlog.LogicalOp{Command: "init:undo"},
	}
	actionHash, err := actionlog.AppendFirst(ctx, tx, rec)
	if err != nil {
		tx.Abort()
		return nil, err
	}
	tx.SetPointer(scratch.ActionLogHead, actionHash)
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) now() tai64.TAI64 { return tai64.Now().TAI64() }

// pointerGetter is the subset of *txn.Transaction's API loadSettings and
// loadActiveSession need: reading an object by hash, and resolving what a
// scratch pointer currently holds. Within a transaction this must go
// through tx.Pointer rather than straight to the scratch store, so that a
// command chaining several pointer-mutating sub-steps in one transaction
// (branch:open's saveas-then-switch, undo's restore-then-inverse) sees its
// own staged updates rather than whatever is still durable on disk.
type pointerGetter interface {
	actionlog.Getter
	Pointer(name string) codec.Hash
}

// repoReader adapts the repository's committed CAS and scratch store into
// a pointerGetter, for read-only call sites that have no open transaction.
type repoReader struct {
	cas cas.Store
	scr *scratch.Store
}

func (rr repoReader) Get(ctx context.Context, h codec.Hash) ([]byte, error) {
	return rr.cas.Get(ctx, h)
}

func (rr repoReader) Pointer(name string) codec.Hash {
	h, _ := rr.scr.GetOrZero(name)
	return h
}

func (r *Repo) reader() pointerGetter { return repoReader{cas: r.cas, scr: r.scr} }

// loadSettings reads the current Settings object.
func (r *Repo) loadSettings(ctx context.Context, g pointerGetter) (objects.Settings, error) {
	h := g.Pointer(scratch.Settings)
	if h.IsZero() {
		return objects.Settings{}, nil
	}
	data, err := g.Get(ctx, h)
	if err != nil {
		return objects.Settings{}, vexerr.Corrupt("settings", err)
	}
	return objects.DecodeSettings(data)
}

// loadBranchTable reads the registry named by settings.BranchTableHash.
func (r *Repo) loadBranchTable(ctx context.Context, g actionlog.Getter, settings objects.Settings) (objects.BranchTable, error) {
	if settings.BranchTableHash.IsZero() {
		return objects.BranchTable{}, nil
	}
	data, err := g.Get(ctx, settings.BranchTableHash)
	if err != nil {
		return objects.BranchTable{}, vexerr.Corrupt("branch table", err)
	}
	return objects.DecodeBranchTable(data)
}

// loadBranch reads a Branch object by hash.
func (r *Repo) loadBranch(ctx context.Context, g actionlog.Getter, h codec.Hash) (objects.Branch, error) {
	data, err := g.Get(ctx, h)
	if err != nil {
		return objects.Branch{}, vexerr.Corrupt("branch", err)
	}
	return objects.DecodeBranch(data)
}

// loadActiveSession reads the session the active_session pointer names.
func (r *Repo) loadActiveSession(ctx context.Context, g pointerGetter) (objects.Session, codec.Hash, error) {
	h := g.Pointer(scratch.ActiveSession)
	if h.IsZero() {
		return objects.Session{}, codec.Hash{}, vexerr.Domain("session", fmt.Errorf("no active session"))
	}
	data, err := g.Get(ctx, h)
	if err != nil {
		return objects.Session{}, codec.Hash{}, vexerr.Corrupt("session", err)
	}
	s, err := objects.DecodeSession(data)
	return s, h, err
}

// mutate is the shared envelope every mutating command runs through: it
// acquires the exclusive lock, begins a transaction, runs fn to stage the
// command's effect, computes the physical pointer deltas automatically
// from what fn touched, appends exactly one ActionRecord, and commits
// (spec §2 "each is exactly one transaction plus an Action entry").
//
// fn returns the command's logical inverse (nil for a purely physical
// undo) and any command-level error. On error the transaction is
// aborted — unless r.DebugMode is set, per spec §4.7 `debug`. In
// r.FakeMode, a successful fn's staged effect is always aborted instead of
// committed.
func (r *Repo) mutate(ctx context.Context, command string, args []string, fn func(tx *txn.Transaction) (*actionlog.LogicalOp, error)) error {
	if err := r.lock.AcquireExclusive(); err != nil {
		return err
	}
	defer r.lock.Release()

	tx, err := txn.Begin(ctx, r.vexDir, r.cas, r.scr)
	if err != nil {
		return err
	}
	inverse, err := fn(tx)
	if err != nil {
		if r.DebugMode {
			logctx.Warnf(ctx, "debug mode: leaving half-applied state for %s: %v", command, err)
			return err
		}
		if abortErr := tx.Abort(); abortErr != nil {
			return abortErr
		}
		return err
	}
	if r.FakeMode {
		logctx.Infof(ctx, "fake: would commit %s %v", command, args)
		return tx.Abort()
	}
	if err := r.appendAction(ctx, tx, command, args, inverse); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit(ctx)
}

// branchPendingRedo implements redo branching (spec §4.5): if a redo stack
// is pending and the caller hasn't already repointed it itself (Redo
// re-applying one of its own options touches it directly), a new mutating
// command preserves the old options as siblings of a synthetic "keep"
// entry instead of leaving them stale.
func (r *Repo) branchPendingRedo(ctx context.Context, tx *txn.Transaction, summary string) error {
	if tx.Touched(scratch.RedoStackHead) {
		return nil
	}
	redoHead := tx.SnapshotOf(scratch.RedoStackHead)
	if redoHead.IsZero() {
		return nil
	}
	data, err := tx.GetObject(ctx, redoHead)
	if err != nil {
		return vexerr.Corrupt("redo stack", err)
	}
	top, err := actionlog.DecodeRedoEntry(data)
	if err != nil {
		return err
	}
	branched := actionlog.BranchRedo(top, summary)
	branchedData, branchedHash, err := branched.Encode()
	if err != nil {
		return err
	}
	if _, err := tx.PutObject(ctx, branchedData); err != nil {
		return err
	}
	tx.SetPointer(scratch.RedoStackHead, branchedHash)
	return nil
}

// appendAction builds and stages the ActionRecord for the pointer updates
// fn staged into tx, chaining it onto the current action_log_head.
func (r *Repo) appendAction(ctx context.Context, tx *txn.Transaction, command string, args []string, inverse *actionlog.LogicalOp) error {
	summary := command
	if len(args) > 0 {
		summary = command + " " + strings.Join(args, " ")
	}
	if err := r.branchPendingRedo(ctx, tx, summary); err != nil {
		return err
	}
	var physical []actionlog.PointerDelta
	for _, name := range scratch.All {
		if name == scratch.ActionLogHead {
			continue
		}
		if !tx.Touched(name) {
			continue
		}
		physical = append(physical, actionlog.PointerDelta{
			Name: name,
			Old:  tx.SnapshotOf(name),
			New:  tx.Pointer(name),
		})
	}
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return err
	}
	rec := actionlog.ActionRecord{
		Command:   command,
		Args:      args,
		Physical:  physical,
		Inverse:   inverse,
		Author:    settings.AuthorUUID,
		CreatedAt: r.now(),
	}
	prevHash := tx.SnapshotOf(scratch.ActionLogHead)
	var actionHash codec.Hash
	if prevHash.IsZero() {
		actionHash, err = actionlog.AppendFirst(ctx, tx, rec)
	} else {
		prevData, getErr := tx.GetObject(ctx, prevHash)
		if getErr != nil {
			return vexerr.Corrupt("action log", getErr)
		}
		prevRec, decErr := actionlog.DecodeActionRecord(prevData)
		if decErr != nil {
			return decErr
		}
		actionHash, err = actionlog.Append(ctx, tx, prevRec, prevHash, rec)
	}
	if err != nil {
		return err
	}
	tx.SetPointer(scratch.ActionLogHead, actionHash)
	return nil
}
