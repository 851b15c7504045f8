package vexrepo

import (
	"bytes"
	"context"
	"path"

	"github.com/vexvcs/vex/internal/actionlog"
	"github.com/vexvcs/vex/internal/codec"
	"github.com/vexvcs/vex/internal/objects"
	"github.com/vexvcs/vex/internal/vexerr"
)

// StatusEntry is one path's three-way comparison result: working copy vs
// session manifest vs HEAD tree (spec §4.6 `status`).
type StatusEntry struct {
	Path  string
	State objects.TrackStatus
}

// flattenTree walks a Tree recursively and returns every file it contains,
// keyed by its full slash-separated path.
func (r *Repo) flattenTree(ctx context.Context, g actionlog.Getter, h codec.Hash, prefix string, out map[string]objects.TreeEntry) error {
	if h.IsZero() {
		return nil
	}
	data, err := g.Get(ctx, h)
	if err != nil {
		return vexerr.Corrupt("tree", err)
	}
	tree, err := objects.DecodeTree(data)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		full := path.Join(prefix, e.Name)
		switch e.Kind {
		case objects.EntryFile, objects.EntryLink:
			out[full] = e
		case objects.EntryDir:
			if err := r.flattenTree(ctx, g, e.TargetHash, full, out); err != nil {
				return err
			}
		case objects.EntryEmptyDir:
			// carries no file content, nothing to compare against.
		}
	}
	return nil
}

// contentMatches reports whether the working copy's current bytes for p
// hash to the same File object fileHash names, so status can distinguish
// "recorded as unchanged" from "changed on disk since it was staged".
func (r *Repo) contentMatches(ctx context.Context, g actionlog.Getter, p string, fileHash codec.Hash) (bool, error) {
	if fileHash.IsZero() {
		return false, nil
	}
	fileData, err := g.Get(ctx, fileHash)
	if err != nil {
		return false, vexerr.Corrupt("file "+p, err)
	}
	file, err := objects.DecodeFile(fileData)
	if err != nil {
		return false, err
	}
	blobData, err := g.Get(ctx, file.BlobHash)
	if err != nil {
		return false, vexerr.Corrupt("blob "+p, err)
	}
	recorded, err := codec.DecodeBlob(blobData)
	if err != nil {
		return false, err
	}
	current, err := r.readWorkingFile(ctx, p)
	if err != nil {
		return false, err
	}
	return bytes.Equal(current, recorded), nil
}

// Status computes the three-way comparison of working copy, session
// manifest, and HEAD tree for every non-ignored path (spec §4.6 `status`).
func (r *Repo) Status(ctx context.Context) ([]StatusEntry, error) {
	if err := r.lock.AcquireShared(); err != nil {
		return nil, err
	}
	defer r.lock.Release()

	settings, err := r.loadSettings(ctx, r.reader())
	if err != nil {
		return nil, err
	}
	session, _, err := r.loadActiveSession(ctx, r.reader())
	if err != nil {
		return nil, err
	}
	manifest, err := r.loadWorkingManifest(ctx, r.cas, session)
	if err != nil {
		return nil, err
	}
	headTree := map[string]objects.TreeEntry{}
	if !session.HeadCommitHash.IsZero() {
		commit, err := r.loadCommit(ctx, r.cas, session.HeadCommitHash)
		if err != nil {
			return nil, err
		}
		if err := r.flattenTree(ctx, r.cas, commit.RootTreeHash, "", headTree); err != nil {
			return nil, err
		}
	}
	working, err := r.listWorkingFiles(ctx, settings)
	if err != nil {
		return nil, err
	}
	workingSet := make(map[string]bool, len(working))
	for _, p := range working {
		workingSet[p] = true
	}

	var out []StatusEntry
	seen := make(map[string]bool)

	for _, p := range working {
		seen[p] = true
		if me, ok := manifest.Find(p); ok {
			if me.Status == objects.TrackDeleted {
				out = append(out, StatusEntry{Path: p, State: objects.TrackDeleted})
				continue
			}
			matches, err := r.contentMatches(ctx, r.cas, p, me.Hash)
			if err != nil {
				return nil, err
			}
			if matches {
				out = append(out, StatusEntry{Path: p, State: me.Status})
			} else {
				out = append(out, StatusEntry{Path: p, State: objects.TrackModified})
			}
			continue
		}
		if te, ok := headTree[p]; ok {
			matches, err := r.contentMatches(ctx, r.cas, p, te.TargetHash)
			if err != nil {
				return nil, err
			}
			if matches {
				out = append(out, StatusEntry{Path: p, State: objects.TrackUnchanged})
			} else {
				out = append(out, StatusEntry{Path: p, State: objects.TrackModified})
			}
			continue
		}
		out = append(out, StatusEntry{Path: p, State: objects.TrackUntracked})
	}

	for p, me := range indexByPath(manifest) {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, StatusEntry{Path: p, State: me.Status})
	}
	for p := range headTree {
		if seen[p] || workingSet[p] {
			continue
		}
		out = append(out, StatusEntry{Path: p, State: objects.TrackDeleted})
	}

	return out, nil
}

func indexByPath(m objects.Manifest) map[string]objects.ManifestEntry {
	out := make(map[string]objects.ManifestEntry, len(m.Entries))
	for _, e := range m.Entries {
		out[e.Path] = e
	}
	return out
}
