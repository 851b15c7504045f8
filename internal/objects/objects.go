// Package objects defines the CAS object kinds from spec §3: the
// tree/file representation of a working copy, the commit DAG, the
// per-commit changelog, branches and sessions, the project manifest and
// stash, repository settings, and the action-log/redo-stack records that
// back undo and redo. Every type here is encoded and addressed through
// internal/codec; nothing in this package touches disk directly.
package objects

import (
	"strings"

	"golang.org/x/exp/slices"

	"go.brendoncarroll.net/tai64"

	"github.com/vexvcs/vex/internal/codec"
)

// EntryKind is the kind of a Tree entry's target.
type EntryKind string

const (
	EntryFile     EntryKind = "file"
	EntryDir      EntryKind = "dir"
	EntryEmptyDir EntryKind = "empty_dir"
	EntryLink     EntryKind = "link"
)

// FileProperties holds the small set of per-path metadata Vex tracks
// outside of content: the executable bit, a mime hint, line-ending policy,
// and user-defined extras (spec §3 "Properties are a string->value
// mapping"; also the supplemented fileprops:get/set, grounded in
// original_source/vexlib/project.py's file-attribute table).
type FileProperties struct {
	Executable bool              `json:"executable,omitempty"`
	MimeHint   string            `json:"mime_hint,omitempty"`
	LineEnding string            `json:"line_ending,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// TreeEntry is one named child of a Tree. Empty directories are
// first-class: EntryEmptyDir has no TargetHash, so tracking an empty
// directory is losslessly expressible without a placeholder file.
type TreeEntry struct {
	Name       string         `json:"name"`
	Kind       EntryKind      `json:"kind"`
	TargetHash codec.Hash     `json:"target_hash,omitempty"`
	Properties FileProperties `json:"properties,omitempty"`
}

// Tree is a directory: a sorted list of named entries, so two trees with
// the same contents always encode identically (spec §4.1: "ordered lists
// for trees").
type Tree struct {
	Entries []TreeEntry `json:"entries"`
}

// SortEntries restores the canonical Name ordering Encode depends on for
// determinism; callers that build a Tree incrementally must call this
// before encoding.
func (t *Tree) SortEntries() {
	slices.SortFunc(t.Entries, func(a, b TreeEntry) int { return strings.Compare(a.Name, b.Name) })
}

func (t Tree) Encode() ([]byte, codec.Hash, error) { return codec.Encode(codec.KindTree, t) }

func DecodeTree(data []byte) (Tree, error) {
	var t Tree
	err := codec.DecodeInto(data, codec.KindTree, &t)
	return t, err
}

// File is (blob_hash, properties). A File is always exactly one Blob;
// Vex does not chunk large files into a rope/B-tree of smaller blocks.
type File struct {
	BlobHash   codec.Hash     `json:"blob_hash"`
	Properties FileProperties `json:"properties,omitempty"`
}

func (f File) Encode() ([]byte, codec.Hash, error) { return codec.Encode(codec.KindFile, f) }

func DecodeFile(data []byte) (File, error) {
	var f File
	err := codec.DecodeInto(data, codec.KindFile, &f)
	return f, err
}

// CommitKind distinguishes how a commit was produced (spec §3).
type CommitKind string

const (
	CommitNormal CommitKind = "normal"
	CommitAmend  CommitKind = "amend"
	CommitApply  CommitKind = "apply"
	CommitReplay CommitKind = "replay"
	CommitAppend CommitKind = "append"
	CommitInit   CommitKind = "init"
)

// Commit is one node of the single-parent commit DAG (spec H2: no
// multi-parent merges; a merge materializes as a new ordinary commit whose
// message records the origin).
type Commit struct {
	Parent             codec.Hash  `json:"parent,omitempty"`
	RootTreeHash       codec.Hash  `json:"root_tree_hash"`
	AuthorUUID         string      `json:"author_uuid"`
	TimestampApplied   tai64.TAI64 `json:"timestamp_applied"`
	TimestampWritten   tai64.TAI64 `json:"timestamp_written"`
	Message            string      `json:"message"`
	ChangelogEntryHash codec.Hash  `json:"changelog_entry_hash,omitempty"`
	Kind               CommitKind  `json:"kind"`
}

func (c Commit) Encode() ([]byte, codec.Hash, error) { return codec.Encode(codec.KindCommit, c) }

func DecodeCommit(data []byte) (Commit, error) {
	var c Commit
	err := codec.DecodeInto(data, codec.KindCommit, &c)
	return c, err
}

// ChangeOp is one path-level change recorded in a ChangelogEntry.
type ChangeOp struct {
	Path string `json:"path"`
	Kind string `json:"kind"` // "added", "removed", "modified", "prop_changed"
}

// ChangelogEntry pairs a commit's path-level diff against its parent with
// a link to the prior entry, so `log`/`history` can filter by path without
// walking trees.
type ChangelogEntry struct {
	PrevChangelogHash codec.Hash `json:"prev_changelog_hash,omitempty"`
	Ops               []ChangeOp `json:"ops"`
}

func (c ChangelogEntry) Encode() ([]byte, codec.Hash, error) {
	return codec.Encode(codec.KindChangelog, c)
}

func DecodeChangelogEntry(data []byte) (ChangelogEntry, error) {
	var c ChangelogEntry
	err := codec.DecodeInto(data, codec.KindChangelog, &c)
	return c, err
}

// Branch is a named, mutable pointer at the tip of a commit chain. UUID is
// stable across renames (spec H4); Name may be reused only once no live
// branch still holds it.
type Branch struct {
	UUID               string     `json:"uuid"`
	Name               string     `json:"name"`
	HeadCommitHash     codec.Hash `json:"head_commit_hash,omitempty"`
	BaseCommitHash     codec.Hash `json:"base_commit_hash,omitempty"`
	UpstreamBranchUUID string     `json:"upstream_branch_uuid,omitempty"`
	Sealed             bool       `json:"sealed,omitempty"`
}

func (b Branch) Encode() ([]byte, codec.Hash, error) { return codec.Encode(codec.KindBranch, b) }

func DecodeBranch(data []byte) (Branch, error) {
	var b Branch
	err := codec.DecodeInto(data, codec.KindBranch, &b)
	return b, err
}

// SessionMode distinguishes a session bound to a branch (the normal case)
// from one checked out at a fixed commit.
type SessionMode string

const (
	SessionAttached SessionMode = "attached"
	SessionDetached SessionMode = "detached"
)

// Session is one working-copy's checkout of a branch. A branch can have
// several sessions; exactly one session is active per process (tracked by
// the scratch pointer active_session).
type Session struct {
	UUID               string      `json:"uuid"`
	BranchUUID         string      `json:"branch_uuid"`
	HeadCommitHash     codec.Hash  `json:"head_commit_hash,omitempty"`
	PreparedCommitHash codec.Hash  `json:"prepared_commit_hash,omitempty"`
	StashManifestHash  codec.Hash  `json:"stash_manifest_hash,omitempty"`
	Prefix             string      `json:"prefix,omitempty"`
	Mode               SessionMode `json:"mode"`

	// WorkingManifestHash anchors the session's live tracked-state
	// Manifest (added/modified bookkeeping not yet part of any commit).
	// Spec §3 describes Manifest's shape but not which object holds the
	// reference for an in-progress session; this field is the minimal
	// addition needed to persist it across commands.
	WorkingManifestHash codec.Hash `json:"working_manifest_hash,omitempty"`
}

func (s Session) Encode() ([]byte, codec.Hash, error) { return codec.Encode(codec.KindSession, s) }

func DecodeSession(data []byte) (Session, error) {
	var s Session
	err := codec.DecodeInto(data, codec.KindSession, &s)
	return s, err
}

// TrackStatus is a manifest entry's status relative to the current commit
// and the working copy.
type TrackStatus string

const (
	TrackAdded     TrackStatus = "added"
	TrackModified  TrackStatus = "modified"
	TrackDeleted   TrackStatus = "deleted"
	TrackIgnored   TrackStatus = "ignored"
	TrackUntracked TrackStatus = "untracked"
	TrackUnchanged TrackStatus = "unchanged"
)

// ManifestEntry is one tracked path's bookkeeping in a Manifest. It is
// distinct from a TreeEntry because it also records status and the
// working copy's last-known mtime/size, used to short-circuit status
// without rehashing unchanged files.
type ManifestEntry struct {
	Path       string         `json:"path"`
	Kind       EntryKind      `json:"kind"`
	Hash       codec.Hash     `json:"hash,omitempty"`
	Properties FileProperties `json:"properties,omitempty"`
	Status     TrackStatus    `json:"status"`
	MTime      tai64.TAI64    `json:"mtime,omitempty"`
	Size       int64          `json:"size,omitempty"`
}

// Manifest is the flat, path-sorted list of everything a session considers
// tracked: the basis for status (diff against the working copy), commit
// (diff against HEAD's tree), and stash (snapshot of uncommitted work).
type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

func (m *Manifest) SortEntries() {
	slices.SortFunc(m.Entries, func(a, b ManifestEntry) int { return strings.Compare(a.Path, b.Path) })
}

// Find returns the entry for path and whether it was present.
func (m Manifest) Find(path string) (ManifestEntry, bool) {
	for _, e := range m.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// With returns a copy of m with e inserted or replacing any existing entry
// at e.Path, kept sorted.
func (m Manifest) With(e ManifestEntry) Manifest {
	out := Manifest{Entries: make([]ManifestEntry, 0, len(m.Entries)+1)}
	replaced := false
	for _, cur := range m.Entries {
		if cur.Path == e.Path {
			out.Entries = append(out.Entries, e)
			replaced = true
			continue
		}
		out.Entries = append(out.Entries, cur)
	}
	if !replaced {
		out.Entries = append(out.Entries, e)
	}
	out.SortEntries()
	return out
}

// Without returns a copy of m with path removed.
func (m Manifest) Without(path string) Manifest {
	out := Manifest{Entries: make([]ManifestEntry, 0, len(m.Entries))}
	for _, cur := range m.Entries {
		if cur.Path != path {
			out.Entries = append(out.Entries, cur)
		}
	}
	return out
}

func (m Manifest) Encode() ([]byte, codec.Hash, error) { return codec.Encode(codec.KindManifest, m) }

func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	err := codec.DecodeInto(data, codec.KindManifest, &m)
	return m, err
}

// StashEntry preserves a session's uncommitted work across a branch switch
// (spec's stash protocol): the manifest of what was tracked, plus the raw
// blobs that were never part of any commit so a plain tree diff couldn't
// recover them.
type StashEntry struct {
	SessionUUID  string       `json:"session_uuid"`
	ManifestHash codec.Hash   `json:"manifest_hash"`
	UnsavedBlobs []codec.Hash `json:"unsaved_blobs,omitempty"`
}

func (s StashEntry) Encode() ([]byte, codec.Hash, error) { return codec.Encode(codec.KindStash, s) }

func DecodeStashEntry(data []byte) (StashEntry, error) {
	var s StashEntry
	err := codec.DecodeInto(data, codec.KindStash, &s)
	return s, err
}

// Settings is the repository-wide configuration object (spec §3): include
// and ignore patterns, the default author, the authors table, and a
// feature-flag set. It lives only in the CAS under the settings scratch
// pointer; no copy of it is written out under .vex/settings/.
//
// BranchTableHash anchors the repository's branch registry. Spec §3 gives
// Branch its own object kind but never says how a branch is found by name
// or UUID without already knowing a commit in it; Settings is the one
// object every command already loads, so the registry hangs off it rather
// than introducing a fifth scratch pointer (spec's pointer set is fixed at
// four).
type Settings struct {
	IncludePatterns  []string        `json:"include_patterns,omitempty"`
	IgnorePatterns   []string        `json:"ignore_patterns,omitempty"`
	AuthorUUID       string          `json:"author_uuid"`
	AuthorsTableHash codec.Hash      `json:"authors_table_hash,omitempty"`
	BranchTableHash  codec.Hash      `json:"branch_table_hash,omitempty"`
	Features         map[string]bool `json:"features,omitempty"`
}

// BranchTableEntry is one registered branch's lookup row. SessionHash
// remembers the session last checked out against this branch, so
// switching back to a branch resumes its session (and any stash) instead
// of starting a fresh one every time.
type BranchTableEntry struct {
	UUID        string     `json:"uuid"`
	Name        string     `json:"name"`
	BranchHash  codec.Hash `json:"branch_hash"`
	SessionHash codec.Hash `json:"session_hash,omitempty"`
}

// BranchTable is the repository's flat registry of branches, sorted by
// Name so encoding is deterministic. It exists so `branch:open`/`branch:new`/
// `branch:saveas` can resolve a branch by name without walking every
// session.
type BranchTable struct {
	Entries []BranchTableEntry `json:"entries"`
}

func (t *BranchTable) SortEntries() {
	slices.SortFunc(t.Entries, func(a, b BranchTableEntry) int { return strings.Compare(a.Name, b.Name) })
}

// ByName returns the entry registered under name, if any.
func (t BranchTable) ByName(name string) (BranchTableEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return BranchTableEntry{}, false
}

// ByUUID returns the entry for a branch UUID, if any.
func (t BranchTable) ByUUID(uuid string) (BranchTableEntry, bool) {
	for _, e := range t.Entries {
		if e.UUID == uuid {
			return e, true
		}
	}
	return BranchTableEntry{}, false
}

// WithoutUUID returns a copy of t with the entry for uuid removed.
func (t BranchTable) WithoutUUID(uuid string) BranchTable {
	out := BranchTable{Entries: make([]BranchTableEntry, 0, len(t.Entries))}
	for _, cur := range t.Entries {
		if cur.UUID != uuid {
			out.Entries = append(out.Entries, cur)
		}
	}
	return out
}

// With returns a copy of t with e inserted or replacing any existing entry
// for the same UUID, kept sorted by name.
func (t BranchTable) With(e BranchTableEntry) BranchTable {
	out := BranchTable{Entries: make([]BranchTableEntry, 0, len(t.Entries)+1)}
	replaced := false
	for _, cur := range t.Entries {
		if cur.UUID == e.UUID {
			out.Entries = append(out.Entries, e)
			replaced = true
			continue
		}
		out.Entries = append(out.Entries, cur)
	}
	if !replaced {
		out.Entries = append(out.Entries, e)
	}
	out.SortEntries()
	return out
}

func (t BranchTable) Encode() ([]byte, codec.Hash, error) {
	return codec.Encode(codec.KindBranchTable, t)
}

func DecodeBranchTable(data []byte) (BranchTable, error) {
	var t BranchTable
	err := codec.DecodeInto(data, codec.KindBranchTable, &t)
	return t, err
}

func (s Settings) Encode() ([]byte, codec.Hash, error) { return codec.Encode(codec.KindSettings, s) }

func DecodeSettings(data []byte) (Settings, error) {
	var s Settings
	err := codec.DecodeInto(data, codec.KindSettings, &s)
	return s, err
}
