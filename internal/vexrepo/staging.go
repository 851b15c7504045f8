package vexrepo

import (
	"bytes"
	"context"
	"path"
	"path/filepath"
	"strings"

	"go.brendoncarroll.net/state/posixfs"
	"golang.org/x/sync/errgroup"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/scratch"
	"github.com/vexvcs/vex/internal/txn"
	"github.com/vexvcs/vex/internal/vexerr"
)

// loadWorkingManifest reads the session's live tracked-state Manifest.
func (r *Repo) loadWorkingManifest(ctx context.Context, g actionlog.Getter, s objects.Session) (objects.Manifest, error) {
	if s.WorkingManifestHash.IsZero() {
		return objects.Manifest{}, nil
	}
	data, err := g.Get(ctx, s.WorkingManifestHash)
	if err != nil {
		return objects.Manifest{}, vexerr.Corrupt("manifest", err)
	}
	return objects.DecodeManifest(data)
}

// saveSession stages a new Session object reflecting m and repoints
// active_session at it.
func (r *Repo) saveSession(ctx context.Context, tx *txn.Transaction, s objects.Session) error {
	data, h, err := s.Encode()
	if err != nil {
		return err
	}
	if _, err := tx.PutObject(ctx, data); err != nil {
		return err
	}
	tx.SetPointer(scratch.ActiveSession, h)
	return nil
}

// readWorkingFile reads path (relative to the repository root) through the
// working-copy filesystem.
func (r *Repo) readWorkingFile(ctx context.Context, p string) ([]byte, error) {
	data, err := posixfs.ReadFile(ctx, r.wfs, p)
	if err != nil {
		return nil, vexerr.IO("read "+p, err)
	}
	return data, nil
}

// isIgnored reports whether p matches one of the repository's ignore
// patterns and not a more specific include pattern (spec §3's
// include/ignore pattern lists on Settings).
func isIgnored(settings objects.Settings, p string) bool {
	included := false
	for _, pat := range settings.IncludePatterns {
		if ok, _ := path.Match(pat, p); ok {
			included = true
			break
		}
	}
	if included {
		return false
	}
	for _, pat := range settings.IgnorePatterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
	}
	return false
}

// hashedFile is one path's working-copy content read and hashed ahead of
// staging, so a batch of paths can be hashed concurrently before the
// transaction's single-threaded PutObject calls write them.
type hashedFile struct {
	path     string
	size     int64
	blobData []byte
	blobHash codec.Hash
}

// hashWorkingFiles reads and blob-encodes every path in paths concurrently;
// the CAS writes themselves still happen one at a time inside the calling
// transaction.
func (r *Repo) hashWorkingFiles(ctx context.Context, paths []string) ([]hashedFile, error) {
	out := make([]hashedFile, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		eg.Go(func() error {
			data, err := r.readWorkingFile(ctx, p)
			if err != nil {
				return err
			}
			blobData, blobHash, err := codec.EncodeBlob(data)
			if err != nil {
				return err
			}
			out[i] = hashedFile{path: p, size: int64(len(data)), blobData: blobData, blobHash: blobHash}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// stageFile stages hf's blob and a File object wrapping it, returning the
// manifest entry to record.
func (r *Repo) stageFile(ctx context.Context, tx *txn.Transaction, hf hashedFile, status objects.TrackStatus) (objects.ManifestEntry, error) {
	if _, err := tx.PutObject(ctx, hf.blobData); err != nil {
		return objects.ManifestEntry{}, err
	}
	file := objects.File{BlobHash: hf.blobHash}
	fileData, fileHash, err := file.Encode()
	if err != nil {
		return objects.ManifestEntry{}, err
	}
	if _, err := tx.PutObject(ctx, fileData); err != nil {
		return objects.ManifestEntry{}, err
	}
	return objects.ManifestEntry{
		Path:   hf.path,
		Kind:   objects.EntryFile,
		Hash:   fileHash,
		Status: status,
		MTime:  r.now(),
		Size:   hf.size,
	}, nil
}

// listWorkingFiles walks the entire working copy once, returning every
// non-ignored leaf path.
func (r *Repo) listWorkingFiles(ctx context.Context, settings objects.Settings) ([]string, error) {
	var out []string
	err := posixfs.WalkLeaves(ctx, r.wfs, "", func(dir string, de posixfs.DirEnt) error {
		if de.Mode.IsDir() {
			return nil
		}
		full := path.Join(dir, de.Name)
		if !isIgnored(settings, full) {
			out = append(out, full)
		}
		return nil
	})
	if err != nil {
		return nil, vexerr.IO("walk working copy", err)
	}
	return out, nil
}

// expandPaths resolves each of paths to the set of tracked file paths it
// names: a file path names itself if it is one, a directory path names
// every non-ignored file beneath it.
func (r *Repo) expandPaths(ctx context.Context, settings objects.Settings, paths []string) ([]string, error) {
	all, err := r.listWorkingFiles(ctx, settings)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		clean := path.Clean(filepath.ToSlash(p))
		matched := false
		for _, leaf := range all {
			if leaf == clean || strings.HasPrefix(leaf, clean+"/") {
				out = append(out, leaf)
				matched = true
			}
		}
		if !matched {
			return nil, vexerr.Domainf("add", "no such path: %s", p)
		}
	}
	return out, nil
}

// effectAdd stages the current working-copy content of paths as Added or
// Modified manifest entries (spec `add`).
func (r *Repo) effectAdd(ctx context.Context, tx *txn.Transaction, paths []string) (*actionlog.LogicalOp, error) {
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
	resolved, err := r.expandPaths(ctx, settings, paths)
	if err != nil {
		return nil, err
	}
	hashed, err := r.hashWorkingFiles(ctx, resolved)
	if err != nil {
		return nil, err
	}
	for _, hf := range hashed {
		status := objects.TrackAdded
		if _, ok := manifest.Find(hf.path); ok {
			status = objects.TrackModified
		}
		entry, err := r.stageFile(ctx, tx, hf, status)
		if err != nil {
			return nil, err
		}
		manifest = manifest.With(entry)
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
	return nil, nil
}

// Add tracks the working-copy content of paths.
func (r *Repo) Add(ctx context.Context, paths []string) error {
	return r.mutate(ctx, "add", paths, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectAdd(ctx, tx, paths)
	})
}

// effectForget removes paths from the working manifest without touching
// the working copy (spec `forget`: undo an `add` before it's committed).
func (r *Repo) effectForget(ctx context.Context, tx *txn.Transaction, paths []string) (*actionlog.LogicalOp, error) {
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	manifest, err := r.loadWorkingManifest(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		manifest = manifest.Without(path.Clean(filepath.ToSlash(p)))
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
	return nil, nil
}

// Forget drops paths from the staged manifest without touching the
// working copy.
func (r *Repo) Forget(ctx context.Context, paths []string) error {
	return r.mutate(ctx, "forget", paths, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectForget(ctx, tx, paths)
	})
}

// effectRemove marks paths as Deleted in the manifest and deletes them
// from the working copy. Its inverse is logical (spec §4.5: remove is one
// of the commands whose undo cannot be a plain pointer restore, since the
// working-copy deletion itself needs to be reversed) — the repository
// layer re-materializes the deleted content from the prior manifest entry.
func (r *Repo) effectRemove(ctx context.Context, tx *txn.Transaction, paths []string) (*actionlog.LogicalOp, error) {
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	manifest, err := r.loadWorkingManifest(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	for _, raw := range paths {
		p := path.Clean(filepath.ToSlash(raw))
		entry, ok := manifest.Find(p)
		if !ok {
			// Not already staged: recover the last-known content from HEAD
			// so materialize can still restore it on undo, and so the
			// eventual commit records a real removal instead of a no-op.
			if !session.HeadCommitHash.IsZero() {
				commit, err := r.loadCommit(ctx, tx, session.HeadCommitHash)
				if err != nil {
					return nil, err
				}
				if te, terr := r.resolveTreePath(ctx, tx, commit.RootTreeHash, p); terr == nil && te.Kind == objects.EntryFile {
					entry = objects.ManifestEntry{Hash: te.TargetHash, Properties: te.Properties}
				}
			}
		}
		entry.Path = p
		entry.Kind = objects.EntryFile
		entry.Status = objects.TrackDeleted
		manifest = manifest.With(entry)
		if err := r.wfs.Remove(p); err != nil && !posixfs.IsErrNotExist(err) {
			return nil, vexerr.IO("remove "+p, err)
		}
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
	// remove's physical pointer restore alone would put active_session back
	// at the pre-remove manifest, but the working-copy file itself stays
	// deleted; materialize re-writes it from the (now-restored) manifest
	// entry's blob (spec §4.5 lists remove among the logical-inverse
	// commands for exactly this reason).
	return &actionlog.LogicalOp{Command: "materialize", Args: paths}, nil
}

// effectMaterialize re-writes paths to the working copy from whatever the
// current manifest says they should contain. Used as remove's undo
// inverse, run after the physical pointer restore has already put the
// pre-remove manifest back in place.
func (r *Repo) effectMaterialize(ctx context.Context, tx *txn.Transaction, paths []string) (*actionlog.LogicalOp, error) {
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	manifest, err := r.loadWorkingManifest(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	for _, raw := range paths {
		p := path.Clean(filepath.ToSlash(raw))
		entry, ok := manifest.Find(p)
		if !ok || entry.Hash.IsZero() {
			continue
		}
		fileData, err := tx.GetObject(ctx, entry.Hash)
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
			return nil, vexerr.IO("materialize "+p, err)
		}
	}
	return nil, nil
}

// Materialize re-writes paths to the working copy from the staged or
// committed content tracked for them, discarding any local edits.
func (r *Repo) Materialize(ctx context.Context, paths []string) error {
	return r.mutate(ctx, "materialize", paths, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectMaterialize(ctx, tx, paths)
	})
}

// Remove deletes paths from the working copy and marks them removed.
func (r *Repo) Remove(ctx context.Context, paths []string) error {
	return r.mutate(ctx, "remove", paths, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectRemove(ctx, tx, paths)
	})
}

// effectIgnore/effectInclude edit Settings' pattern lists.
func (r *Repo) editPatterns(ctx context.Context, tx *txn.Transaction, include bool, patterns []string) (*actionlog.LogicalOp, error) {
	settings, err := r.loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	if include {
		settings.IncludePatterns = append(settings.IncludePatterns, patterns...)
	} else {
		settings.IgnorePatterns = append(settings.IgnorePatterns, patterns...)
	}
	data, h, err := settings.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, data); err != nil {
		return nil, err
	}
	tx.SetPointer(scratch.Settings, h)
	return nil, nil
}

// Ignore appends patterns to the repository's ignore list.
func (r *Repo) Ignore(ctx context.Context, patterns []string) error {
	return r.mutate(ctx, "ignore", patterns, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.editPatterns(ctx, tx, false, patterns)
	})
}

// Include appends patterns to the repository's include list (an
// include pattern overrides a broader ignore pattern, spec §3).
func (r *Repo) Include(ctx context.Context, patterns []string) error {
	return r.mutate(ctx, "include", patterns, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.editPatterns(ctx, tx, true, patterns)
	})
}
