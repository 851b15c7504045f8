package vexrepo

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"

	"go.brendoncarroll.net/state/posixfs"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/txn"
	"github.com/vexvcs/vex/internal/vexerr"
)

var errNoSuchPathInTree = errors.New("path not present in target commit")

// resolveTreePath walks root (a Tree hash) following the slash-separated
// segments of p and returns the TreeEntry found at the end.
func (r *Repo) resolveTreePath(ctx context.Context, tx *txn.Transaction, root codec.Hash, p string) (objects.TreeEntry, error) {
	if root.IsZero() {
		return objects.TreeEntry{}, errNoSuchPathInTree
	}
	segments := strings.Split(path.Clean(p), "/")
	cur := root
	var found objects.TreeEntry
	for i, seg := range segments {
		data, err := tx.GetObject(ctx, cur)
		if err != nil {
			return objects.TreeEntry{}, vexerr.Corrupt("tree", err)
		}
		tree, err := objects.DecodeTree(data)
		if err != nil {
			return objects.TreeEntry{}, err
		}
		var next *objects.TreeEntry
		for j := range tree.Entries {
			if tree.Entries[j].Name == seg {
				next = &tree.Entries[j]
				break
			}
		}
		if next == nil {
			return objects.TreeEntry{}, errNoSuchPathInTree
		}
		if i == len(segments)-1 {
			found = *next
			return found, nil
		}
		if next.Kind != objects.EntryDir {
			return objects.TreeEntry{}, errNoSuchPathInTree
		}
		cur = next.TargetHash
	}
	return found, nil
}

// effectRestore resets paths to their content at the active branch's HEAD
// commit, both in the working copy and in the session's working manifest
// (spec §4.6 `restore`). restore's inverse is logical: the manifest entry
// it overwrites isn't recoverable from a bare pointer restore once the
// working-copy file has also been rewritten in place.
func (r *Repo) effectRestore(ctx context.Context, tx *txn.Transaction, paths []string) (*actionlog.LogicalOp, error) {
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	if session.HeadCommitHash.IsZero() {
		return nil, vexerr.Domain("restore", errors.New("no commit to restore from"))
	}
	commit, err := r.loadCommit(ctx, tx, session.HeadCommitHash)
	if err != nil {
		return nil, err
	}
	manifest, err := r.loadWorkingManifest(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	for _, raw := range paths {
		p := path.Clean(raw)
		entry, err := r.resolveTreePath(ctx, tx, commit.RootTreeHash, p)
		if errors.Is(err, errNoSuchPathInTree) {
			return nil, vexerr.Domainf("restore", "no such path in HEAD: %s", p)
		}
		if err != nil {
			return nil, err
		}
		if entry.Kind != objects.EntryFile {
			continue
		}
		fileData, err := tx.GetObject(ctx, entry.TargetHash)
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
			return nil, vexerr.IO("restore "+p, err)
		}
		manifest = manifest.With(objects.ManifestEntry{
			Path:       p,
			Kind:       objects.EntryFile,
			Hash:       entry.TargetHash,
			Properties: entry.Properties,
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
	session.WorkingManifestHash = manifestHash
	if err := r.saveSession(ctx, tx, session); err != nil {
		return nil, err
	}
	return &actionlog.LogicalOp{Command: "materialize", Args: paths}, nil
}

// Restore resets paths to their content at the active branch's HEAD.
func (r *Repo) Restore(ctx context.Context, paths []string) error {
	return r.mutate(ctx, "restore", paths, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectRestore(ctx, tx, paths)
	})
}
