// Package txn implements the two-phase transaction layer over the CAS and
// scratch store (spec §4.4): a command stages CAS writes and pointer
// updates, then commits them atomically via a durable plan file and a
// strictly ordered sequence of renames, with startup recovery able to
// finish or roll back a transaction interrupted by a crash.
package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vexvcs/vex/internal/cas"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/scratch"
)

// PointerUpdate is one entry of the durable plan (spec §4.4): the value a
// scratch pointer held when the transaction began, and the value it will
// take on commit.
type PointerUpdate struct {
	Old codec.Hash `json:"old"`
	New codec.Hash `json:"new"`
}

type planFile struct {
	Pointers map[string]PointerUpdate `json:"pointers"`
}

// Transaction mediates one command's staged writes. Callers obtain one via
// Begin, stage objects and pointer updates, and finish with Commit or
// Abort.
type Transaction struct {
	repoDir    string
	casDir     string
	pendingDir string
	planPath   string

	main    cas.Store
	pending *cas.FSStore
	scr     *scratch.Store

	snapshot map[string]codec.Hash
	updates  map[string]codec.Hash
}

// Begin captures the current value of every scratch pointer and prepares a
// fresh pending/ staging area. Begin assumes the exclusive repository lock
// is already held and that Recover has already run for this repoDir, i.e.
// there is no leftover pending/plan from a previous process.
func Begin(ctx context.Context, repoDir string, main cas.Store, scr *scratch.Store) (*Transaction, error) {
	pendingDir := filepath.Join(repoDir, "pending")
	if err := os.RemoveAll(pendingDir); err != nil {
		return nil, fmt.Errorf("txn: clear stale pending: %w", err)
	}
	if err := os.MkdirAll(pendingDir, 0o755); err != nil {
		return nil, fmt.Errorf("txn: mkdir pending: %w", err)
	}
	pending, err := cas.NewFSStore(pendingDir)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]codec.Hash, len(scratch.All))
	for _, name := range scratch.All {
		h, err := scr.GetOrZero(name)
		if err != nil {
			return nil, fmt.Errorf("txn: snapshot %s: %w", name, err)
		}
		snapshot[name] = h
	}
	return &Transaction{
		repoDir:    repoDir,
		casDir:     filepath.Join(repoDir, "cas"),
		pendingDir: pendingDir,
		planPath:   filepath.Join(repoDir, "plan"),
		main:       main,
		pending:    pending,
		scr:        scr,
		snapshot:   snapshot,
		updates:    make(map[string]codec.Hash),
	}, nil
}

// PutObject stages a CAS write. The object is fsynced into pending/
// immediately (so commit's "fsync all pending/ files" is automatically
// satisfied) but is not visible at its final CAS path until Commit.
func (t *Transaction) PutObject(ctx context.Context, data []byte) (codec.Hash, error) {
	return t.pending.Put(ctx, data)
}

// GetObject reads an object, preferring anything staged in this
// transaction over the already-committed CAS (so a command can read back
// an object it just wrote).
func (t *Transaction) GetObject(ctx context.Context, h codec.Hash) ([]byte, error) {
	data, err := t.pending.Get(ctx, h)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, cas.ErrNotFound) {
		return nil, err
	}
	return t.main.Get(ctx, h)
}

// Get is an alias for GetObject so *Transaction satisfies actionlog.Getter
// (and any other reader interface keyed on the cas.Store-shaped Get
// method) without the command layer needing two names for the same read.
func (t *Transaction) Get(ctx context.Context, h codec.Hash) ([]byte, error) {
	return t.GetObject(ctx, h)
}

// SetPointer records the intended post-commit value of a scratch pointer.
func (t *Transaction) SetPointer(name string, h codec.Hash) {
	t.updates[name] = h
}

// Pointer returns the value name will hold once this transaction commits,
// falling back to the value it held at Begin if untouched.
func (t *Transaction) Pointer(name string) codec.Hash {
	if h, ok := t.updates[name]; ok {
		return h
	}
	return t.snapshot[name]
}

// SnapshotOf returns the value a pointer held when the transaction began,
// regardless of any SetPointer call made since — used to build the
// ActionRecord's physical old/new pairs (spec §4.5).
func (t *Transaction) SnapshotOf(name string) codec.Hash {
	return t.snapshot[name]
}

// Touched reports whether SetPointer has been called for name.
func (t *Transaction) Touched(name string) bool {
	_, ok := t.updates[name]
	return ok
}

// Commit performs the strictly ordered sequence from spec §4.4: the plan
// is made durable, pending objects are moved into the CAS, the
// action_log_head pointer (the commit point) is swapped first, then every
// other touched pointer, and finally pending/ and plan are removed.
func (t *Transaction) Commit(ctx context.Context) error {
	pf := planFile{Pointers: make(map[string]PointerUpdate, len(t.updates))}
	for name, newVal := range t.updates {
		pf.Pointers[name] = PointerUpdate{Old: t.snapshot[name], New: newVal}
	}
	if err := writePlan(t.planPath, pf); err != nil {
		return err
	}
	if err := movePendingInto(t.pendingDir, t.casDir); err != nil {
		return fmt.Errorf("txn: commit: %w", err)
	}
	if upd, ok := pf.Pointers[scratch.ActionLogHead]; ok {
		if err := t.scr.Set(scratch.ActionLogHead, upd.New); err != nil {
			return fmt.Errorf("txn: commit: swap action log head: %w", err)
		}
	}
	for name, upd := range pf.Pointers {
		if name == scratch.ActionLogHead {
			continue
		}
		if err := t.scr.Set(name, upd.New); err != nil {
			return fmt.Errorf("txn: commit: swap %s: %w", name, err)
		}
	}
	return cleanup(t.pendingDir, t.planPath)
}

// Abort discards all staged writes and pointer updates (spec §4.4: "deletes
// pending/ and plan").
func (t *Transaction) Abort() error {
	return cleanup(t.pendingDir, t.planPath)
}

func cleanup(pendingDir, planPath string) error {
	if err := os.RemoveAll(pendingDir); err != nil {
		return fmt.Errorf("txn: cleanup pending: %w", err)
	}
	if err := os.Remove(planPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("txn: cleanup plan: %w", err)
	}
	return nil
}

func writePlan(path string, pf planFile) error {
	data, err := json.Marshal(pf)
	if err != nil {
		return fmt.Errorf("txn: marshal plan: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-plan-*")
	if err != nil {
		return fmt.Errorf("txn: create plan temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("txn: write plan: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("txn: fsync plan: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("txn: close plan: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("txn: rename plan: %w", err)
	}
	return nil
}

func readPlan(path string) (planFile, error) {
	var pf planFile
	data, err := os.ReadFile(path)
	if err != nil {
		return pf, fmt.Errorf("txn: read plan: %w", err)
	}
	if err := json.Unmarshal(data, &pf); err != nil {
		return pf, fmt.Errorf("%w: plan: %v", codec.ErrCorrupt, err)
	}
	return pf, nil
}

// movePendingInto renames every object staged under pendingDir into casDir,
// preserving the <2-hex>/<62-hex> layout (spec §4.4 step (b): "rename is
// atomic per file; across-file atomicity is achieved by applying pointer
// swaps only after all renames succeed").
func movePendingInto(pendingDir, casDir string) error {
	entries, err := os.ReadDir(pendingDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("readdir pending: %w", err)
	}
	for _, prefixEnt := range entries {
		if !prefixEnt.IsDir() {
			continue
		}
		prefix := prefixEnt.Name()
		srcDir := filepath.Join(pendingDir, prefix)
		dstDir := filepath.Join(casDir, prefix)
		leaves, err := os.ReadDir(srcDir)
		if err != nil {
			return fmt.Errorf("readdir %s: %w", srcDir, err)
		}
		if len(leaves) == 0 {
			continue
		}
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dstDir, err)
		}
		for _, leaf := range leaves {
			if leaf.IsDir() {
				continue
			}
			src := filepath.Join(srcDir, leaf.Name())
			dst := filepath.Join(dstDir, leaf.Name())
			if _, err := os.Stat(dst); err == nil {
				continue // already present: idempotent re-run during recovery
			}
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("rename %s -> %s: %w", src, dst, err)
			}
		}
	}
	return nil
}

// Recover inspects a repository's pending/plan state at startup (spec
// §4.4 "Recovery on startup") and either finishes a transaction that had
// already reached its commit point (the action_log_head swap) or rolls
// back one that hadn't. It reports whether a RecoverableHalt was found.
func Recover(ctx context.Context, repoDir string, scr *scratch.Store) (bool, error) {
	pendingDir := filepath.Join(repoDir, "pending")
	planPath := filepath.Join(repoDir, "plan")

	_, pendingErr := os.Stat(pendingDir)
	_, planErr := os.Stat(planPath)
	pendingExists := pendingErr == nil
	planExists := planErr == nil
	if !pendingExists && !planExists {
		return false, nil
	}
	if !planExists {
		// The plan was never made durable, so nothing in pending/ is
		// reachable from any pointer: pure rollback.
		if err := os.RemoveAll(pendingDir); err != nil {
			return false, fmt.Errorf("txn: recover: %w", err)
		}
		return true, nil
	}
	pf, err := readPlan(planPath)
	if err != nil {
		return false, err
	}
	casDir := filepath.Join(repoDir, "cas")
	forwardDone := false
	if upd, ok := pf.Pointers[scratch.ActionLogHead]; ok {
		cur, err := scr.GetOrZero(scratch.ActionLogHead)
		if err != nil {
			return false, fmt.Errorf("txn: recover: %w", err)
		}
		forwardDone = cur == upd.New
	}
	if forwardDone {
		if err := movePendingInto(pendingDir, casDir); err != nil {
			return false, fmt.Errorf("txn: recover: finish forward: %w", err)
		}
		for name, upd := range pf.Pointers {
			if name == scratch.ActionLogHead {
				continue
			}
			if err := scr.Set(name, upd.New); err != nil {
				return false, fmt.Errorf("txn: recover: finish forward: %w", err)
			}
		}
	}
	if err := cleanup(pendingDir, planPath); err != nil {
		return false, err
	}
	return true, nil
}
