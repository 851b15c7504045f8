// Package actionlog implements the undo/redo machinery from spec §4.5: an
// append-only chain of ActionRecords, each pairing a physical snapshot of
// touched scratch pointers with an optional logical inverse command, plus
// the redo stack and its "branching" rule for preserving divergent futures
// instead of discarding them.
package actionlog

import (
	"context"
	"fmt"
	"strings"

	"go.brendoncarroll.net/tai64"

	"github.com/vexvcs/vex/internal/codec"
)

// PointerDelta is one scratch pointer's value before and after a command,
// captured into the action log's physical snapshot.
type PointerDelta struct {
	Name string     `json:"name"`
	Old  codec.Hash `json:"old"`
	New  codec.Hash `json:"new"`
}

// LogicalOp names a command and its arguments, used both as the forward
// description of a command that can't be undone by pointer restore alone
// (switch, branch:open, init, restore, remove, branch:forget — spec §4.5) and as
// the description of its inverse.
type LogicalOp struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// ActionRecord is one entry of the action log.
type ActionRecord struct {
	PrevHash  codec.Hash     `json:"prev_hash"`
	Seq       uint64         `json:"seq"`
	Command   string         `json:"command"`
	Args      []string       `json:"args,omitempty"`
	Physical  []PointerDelta `json:"physical"`
	Inverse   *LogicalOp     `json:"inverse,omitempty"`
	Author    string         `json:"author"`
	CreatedAt tai64.TAI64    `json:"created_at"`
}

func (r ActionRecord) Encode() ([]byte, codec.Hash, error) {
	return codec.Encode(codec.KindAction, r)
}

func DecodeActionRecord(data []byte) (ActionRecord, error) {
	var r ActionRecord
	err := codec.DecodeInto(data, codec.KindAction, &r)
	return r, err
}

// Summary renders a one-line human description, used by undo:list/redo:list
// and by RedoOption.Summary.
func (r ActionRecord) Summary() string {
	if len(r.Args) == 0 {
		return r.Command
	}
	return r.Command + " " + strings.Join(r.Args, " ")
}

// Putter is the subset of txn.Transaction's API Append needs; satisfied by
// *txn.Transaction without actionlog importing txn (action records are
// staged like any other CAS write, inside the same transaction as the
// command's other object writes).
type Putter interface {
	PutObject(ctx context.Context, data []byte) (codec.Hash, error)
}

// Getter is the subset of cas.Store's API Walk needs; satisfied directly
// by cas.Store.
type Getter interface {
	Get(ctx context.Context, h codec.Hash) ([]byte, error)
}

// Append stages rec (with PrevHash and Seq filled in from the current
// chain) into the transaction and returns its hash. The caller still must
// call tx.SetPointer(scratch.ActionLogHead, hash) to make it the new head.
func Append(ctx context.Context, p Putter, prev ActionRecord, prevHash codec.Hash, rec ActionRecord) (codec.Hash, error) {
	rec.PrevHash = prevHash
	rec.Seq = prev.Seq + 1
	data, h, err := rec.Encode()
	if err != nil {
		return codec.Hash{}, err
	}
	if _, err := p.PutObject(ctx, data); err != nil {
		return codec.Hash{}, err
	}
	return h, nil
}

// AppendFirst is Append for the first record in a repository's chain (no
// predecessor).
func AppendFirst(ctx context.Context, p Putter, rec ActionRecord) (codec.Hash, error) {
	rec.PrevHash = codec.ZeroHash
	rec.Seq = 0
	data, h, err := rec.Encode()
	if err != nil {
		return codec.Hash{}, err
	}
	if _, err := p.PutObject(ctx, data); err != nil {
		return codec.Hash{}, err
	}
	return h, nil
}

// Walk returns up to limit records starting at head and following PrevHash,
// most recent first. limit <= 0 means unbounded (walk to the chain's
// start).
func Walk(ctx context.Context, g Getter, head codec.Hash, limit int) ([]ActionRecord, error) {
	var out []ActionRecord
	cur := head
	for !cur.IsZero() {
		if limit > 0 && len(out) >= limit {
			break
		}
		data, err := g.Get(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("actionlog: walk: %w", err)
		}
		rec, err := DecodeActionRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		cur = rec.PrevHash
	}
	return out, nil
}

// UndoPlan describes what the repository layer must do to undo the action
// recorded by rec (spec §4.5 "Undo").
type UndoPlan struct {
	// NewActionLogHead is what action_log_head becomes after the undo:
	// rec's predecessor.
	NewActionLogHead codec.Hash
	// PointerRestores are the scratch pointers (other than
	// action_log_head) that must be set back to their pre-command value.
	PointerRestores []PointerDelta
	// Inverse is non-nil when rec's command cannot be undone by pointer
	// restore alone; the repository layer must execute this command
	// instead of applying PointerRestores, not in addition to it.
	Inverse *LogicalOp
}

// PlanUndo builds the UndoPlan for popping rec off the action log.
func PlanUndo(rec ActionRecord) UndoPlan {
	return UndoPlan{
		NewActionLogHead: rec.PrevHash,
		PointerRestores:  rec.Physical,
		Inverse:          rec.Inverse,
	}
}

// RedoOption is one alternative future recorded at a redo stack position.
// Keep marks the synthetic "stay on the line just taken" alternative
// created by redo branching; for any other option, ActionHash names the
// ActionRecord to re-apply.
type RedoOption struct {
	Summary    string     `json:"summary"`
	Keep       bool       `json:"keep,omitempty"`
	ActionHash codec.Hash `json:"action_hash,omitempty"`
}

// RedoEntry is one node of the redo stack: a chain (Prev) of choice
// points, each offering one or more Options.
type RedoEntry struct {
	Prev    codec.Hash   `json:"prev"`
	Options []RedoOption `json:"options"`
}

func (e RedoEntry) Encode() ([]byte, codec.Hash, error) {
	return codec.Encode(codec.KindRedoEntry, e)
}

func DecodeRedoEntry(data []byte) (RedoEntry, error) {
	var e RedoEntry
	err := codec.DecodeInto(data, codec.KindRedoEntry, &e)
	return e, err
}

// PushUndo builds the RedoEntry created when undoing recHash/rec: a single
// option that would re-apply the just-undone action (spec §4.5 step 3,
// "Move A to the redo stack").
func PushUndo(priorRedoHead codec.Hash, recHash codec.Hash, rec ActionRecord) RedoEntry {
	return RedoEntry{
		Prev: priorRedoHead,
		Options: []RedoOption{{
			Summary:    rec.Summary(),
			ActionHash: recHash,
		}},
	}
}

// BranchRedo implements redo branching (spec §4.5): called when a new
// mutating command commits while the redo stack is non-empty. Rather than
// discarding top, its options are preserved as siblings of a new synthetic
// "keep" option describing the command that was just performed.
func BranchRedo(top RedoEntry, newActionSummary string) RedoEntry {
	opts := make([]RedoOption, 0, len(top.Options)+1)
	opts = append(opts, top.Options...)
	opts = append(opts, RedoOption{Keep: true, Summary: newActionSummary})
	return RedoEntry{Prev: top.Prev, Options: opts}
}

// ErrAmbiguousRedo is returned by Choose when an entry holds more than one
// option and the caller didn't disambiguate with a choice index.
var ErrAmbiguousRedo = fmt.Errorf("actionlog: ambiguous redo, choice required")

// Choose resolves one option out of entry, 1-indexed to match redo
// --choice=n. choice == 0 means "no choice given": it succeeds only when
// entry has exactly one option.
func Choose(entry RedoEntry, choice int) (RedoOption, error) {
	if choice == 0 {
		if len(entry.Options) != 1 {
			return RedoOption{}, ErrAmbiguousRedo
		}
		choice = 1
	}
	if choice < 1 || choice > len(entry.Options) {
		return RedoOption{}, fmt.Errorf("actionlog: choice %d out of range (1..%d)", choice, len(entry.Options))
	}
	return entry.Options[choice-1], nil
}
