package vexrepo

import (
	"context"

	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/vexerr"
)

// DebugCat streams a CAS object's canonical encoded bytes back to the
// caller, bypassing the command catalog's inverse/transaction plumbing
// entirely (spec §5's stated exception for read-only introspection; the
// supplemented `debug:cat`, grounded in original_source/vexlib's object
// dump tooling).
func (r *Repo) DebugCat(ctx context.Context, h codec.Hash) ([]byte, error) {
	if err := r.lock.AcquireShared(); err != nil {
		return nil, err
	}
	defer r.lock.Release()
	data, err := r.cas.Get(ctx, h)
	if err != nil {
		return nil, vexerr.Corrupt("debug:cat", err)
	}
	return data, nil
}
