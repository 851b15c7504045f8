package vexrepo

import (
	"context"
	"encoding/json"
	"path"
	"path/filepath"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/txn"
	"github.com/vexvcs/vex/internal/vexerr"
)

// FilePropsGet reads the properties recorded for p, preferring the staged
// manifest entry and falling back to HEAD's tree when p hasn't been
// touched since the last commit (supplemented `fileprops:get`, grounded in
// original_source/vexlib/project.py's per-path attribute table).
func (r *Repo) FilePropsGet(ctx context.Context, p string) (objects.FileProperties, error) {
	if err := r.lock.AcquireShared(); err != nil {
		return objects.FileProperties{}, err
	}
	defer r.lock.Release()

	clean := path.Clean(filepath.ToSlash(p))
	session, _, err := r.loadActiveSession(ctx, r.reader())
	if err != nil {
		return objects.FileProperties{}, err
	}
	manifest, err := r.loadWorkingManifest(ctx, r.cas, session)
	if err != nil {
		return objects.FileProperties{}, err
	}
	if entry, ok := manifest.Find(clean); ok {
		return entry.Properties, nil
	}
	if session.HeadCommitHash.IsZero() {
		return objects.FileProperties{}, vexerr.Domainf("fileprops:get", "no such path: %s", p)
	}
	commit, err := r.loadCommit(ctx, r.cas, session.HeadCommitHash)
	if err != nil {
		return objects.FileProperties{}, err
	}
	files := map[string]objects.TreeEntry{}
	if err := r.flattenTree(ctx, r.cas, commit.RootTreeHash, "", files); err != nil {
		return objects.FileProperties{}, err
	}
	te, ok := files[clean]
	if !ok {
		return objects.FileProperties{}, vexerr.Domainf("fileprops:get", "no such path: %s", p)
	}
	return te.Properties, nil
}

// effectFilePropsSet rewrites p's File object with props, keeping its
// content hash, and records the result as a staged manifest entry so the
// change flows through commit/undo the same way any other edit does.
func (r *Repo) effectFilePropsSet(ctx context.Context, tx *txn.Transaction, p string, props objects.FileProperties) (*actionlog.LogicalOp, error) {
	session, _, err := r.loadActiveSession(ctx, tx)
	if err != nil {
		return nil, err
	}
	manifest, err := r.loadWorkingManifest(ctx, tx, session)
	if err != nil {
		return nil, err
	}
	clean := path.Clean(filepath.ToSlash(p))
	entry, ok := manifest.Find(clean)
	if !ok {
		if session.HeadCommitHash.IsZero() {
			return nil, vexerr.Domainf("fileprops:set", "no such path: %s", p)
		}
		commit, err := r.loadCommit(ctx, tx, session.HeadCommitHash)
		if err != nil {
			return nil, err
		}
		te, terr := r.resolveTreePath(ctx, tx, commit.RootTreeHash, clean)
		if terr != nil || te.Kind != objects.EntryFile {
			return nil, vexerr.Domainf("fileprops:set", "no such path: %s", p)
		}
		entry = objects.ManifestEntry{Path: clean, Kind: objects.EntryFile, Hash: te.TargetHash}
	}
	if entry.Hash.IsZero() {
		return nil, vexerr.Domainf("fileprops:set", "no such path: %s", p)
	}
	fileData, err := tx.GetObject(ctx, entry.Hash)
	if err != nil {
		return nil, vexerr.Corrupt("file "+p, err)
	}
	file, err := objects.DecodeFile(fileData)
	if err != nil {
		return nil, err
	}
	file.Properties = props
	newData, newHash, err := file.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.PutObject(ctx, newData); err != nil {
		return nil, err
	}
	entry.Path = clean
	entry.Kind = objects.EntryFile
	entry.Hash = newHash
	entry.Properties = props
	if entry.Status == "" {
		entry.Status = objects.TrackModified
	}
	manifest = manifest.With(entry)
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

// FilePropsSet stages props as p's new recorded properties. props is
// carried as the action record's second argument (JSON-encoded), so the
// record names the full change and dispatchEffect's fileprops:set case can
// re-run it. fileprops:set has no logical inverse, so undo and redo swap
// the recorded pointers rather than re-running it.
func (r *Repo) FilePropsSet(ctx context.Context, p string, props objects.FileProperties) error {
	encoded, err := json.Marshal(props)
	if err != nil {
		return vexerr.Domain("fileprops:set", err)
	}
	return r.mutate(ctx, "fileprops:set", []string{p, string(encoded)}, func(tx *txn.Transaction) (*actionlog.LogicalOp, error) {
		return r.effectFilePropsSet(ctx, tx, p, props)
	})
}

func decodeFileProps(raw string) (objects.FileProperties, error) {
	var props objects.FileProperties
	if raw == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return objects.FileProperties{}, vexerr.Domain("fileprops:set", err)
	}
	return props, nil
}
