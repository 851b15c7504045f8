package vexrepo

import (
	"context"

	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/vexerr"
)

// HistoryEntry is one commit in the walk back from HEAD, alongside the
// path-level changes its changelog entry recorded.
type HistoryEntry struct {
	Hash    codec.Hash
	Commit  objects.Commit
	Changed []objects.ChangeOp
}

// History walks the active branch's commit chain from HEAD to its root,
// optionally filtered to commits that touched pathFilter (supplemented
// `history`/`log [path]`, grounded in original_source/vexlib/project.py's
// use of changesets for per-path history without a full tree walk).
// limit<=0 means no bound.
func (r *Repo) History(ctx context.Context, pathFilter string, limit int) ([]HistoryEntry, error) {
	if err := r.lock.AcquireShared(); err != nil {
		return nil, err
	}
	defer r.lock.Release()

	session, _, err := r.loadActiveSession(ctx, r.reader())
	if err != nil {
		return nil, err
	}

	var out []HistoryEntry
	cur := session.HeadCommitHash
	for !cur.IsZero() {
		if limit > 0 && len(out) >= limit {
			break
		}
		commit, err := r.loadCommit(ctx, r.cas, cur)
		if err != nil {
			return nil, err
		}
		var ops []objects.ChangeOp
		if !commit.ChangelogEntryHash.IsZero() {
			data, err := r.cas.Get(ctx, commit.ChangelogEntryHash)
			if err != nil {
				return nil, vexerr.Corrupt("changelog", err)
			}
			changelog, err := objects.DecodeChangelogEntry(data)
			if err != nil {
				return nil, err
			}
			ops = changelog.Ops
		}
		if pathFilter == "" {
			out = append(out, HistoryEntry{Hash: cur, Commit: commit, Changed: ops})
		} else if touches(ops, pathFilter) {
			out = append(out, HistoryEntry{Hash: cur, Commit: commit, Changed: ops})
		}
		cur = commit.Parent
	}
	return out, nil
}

func touches(ops []objects.ChangeOp, p string) bool {
	for _, op := range ops {
		if op.Path == p {
			return true
		}
	}
	return false
}
