package objects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexvcs/vex/internal/codec"
)

func TestTreeRoundTrip(t *testing.T) {
	tree := Tree{Entries: []TreeEntry{
		{Name: "b.py", Kind: EntryFile, TargetHash: codec.HashBytes([]byte("b"))},
		{Name: "a.py", Kind: EntryFile, TargetHash: codec.HashBytes([]byte("a"))},
		{Name: "empty", Kind: EntryEmptyDir},
	}}
	tree.SortEntries()
	require.Equal(t, "a.py", tree.Entries[0].Name)

	data, h, err := tree.Encode()
	require.NoError(t, err)
	got, err := DecodeTree(data)
	require.NoError(t, err)
	require.Equal(t, tree, got)
	require.NoError(t, codec.VerifyHash(data, h))
}

func TestCommitRoundTrip(t *testing.T) {
	c := Commit{
		RootTreeHash: codec.HashBytes([]byte("tree")),
		AuthorUUID:   "alice-uuid",
		Message:      "initial",
		Kind:         CommitNormal,
	}
	data, _, err := c.Encode()
	require.NoError(t, err)
	got, err := DecodeCommit(data)
	require.NoError(t, err)
	require.Equal(t, c, got)
}

func TestManifestWithAndWithout(t *testing.T) {
	m := Manifest{}
	m = m.With(ManifestEntry{Path: "z.txt", Status: TrackAdded})
	m = m.With(ManifestEntry{Path: "a.txt", Status: TrackAdded})
	require.Equal(t, "a.txt", m.Entries[0].Path)
	require.Equal(t, "z.txt", m.Entries[1].Path)

	m = m.With(ManifestEntry{Path: "a.txt", Status: TrackModified})
	e, ok := m.Find("a.txt")
	require.True(t, ok)
	require.Equal(t, TrackModified, e.Status)
	require.Len(t, m.Entries, 2)

	m = m.Without("a.txt")
	require.Len(t, m.Entries, 1)
	_, ok = m.Find("a.txt")
	require.False(t, ok)
}

func TestSessionRoundTrip(t *testing.T) {
	s := Session{UUID: "11111111-1111-1111-1111-111111111111", BranchUUID: "branch-uuid", Prefix: "lib", Mode: SessionAttached}
	data, _, err := s.Encode()
	require.NoError(t, err)
	got, err := DecodeSession(data)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestBranchRoundTrip(t *testing.T) {
	b := Branch{UUID: "b-uuid", Name: "latest"}
	data, _, err := b.Encode()
	require.NoError(t, err)
	got, err := DecodeBranch(data)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := Settings{
		IncludePatterns: []string{"*.go"},
		IgnorePatterns:  []string{"*.tmp"},
		AuthorUUID:      "alice-uuid",
		BranchTableHash: codec.HashBytes([]byte("branch-table")),
		Features:        map[string]bool{"experimental": true},
	}
	data, _, err := s.Encode()
	require.NoError(t, err)
	got, err := DecodeSettings(data)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestBranchTableRoundTrip(t *testing.T) {
	table := BranchTable{}
	table = table.With(BranchTableEntry{UUID: "uuid-z", Name: "zeta", BranchHash: codec.HashBytes([]byte("z"))})
	table = table.With(BranchTableEntry{UUID: "uuid-a", Name: "alpha", BranchHash: codec.HashBytes([]byte("a"))})
	require.Equal(t, "alpha", table.Entries[0].Name)
	require.Equal(t, "zeta", table.Entries[1].Name)

	data, h, err := table.Encode()
	require.NoError(t, err)
	got, err := DecodeBranchTable(data)
	require.NoError(t, err)
	require.Equal(t, table, got)
	require.NoError(t, codec.VerifyHash(data, h))
}

func TestBranchTableWithReplacesSameUUID(t *testing.T) {
	table := BranchTable{}
	table = table.With(BranchTableEntry{UUID: "uuid-a", Name: "alpha", SessionHash: codec.HashBytes([]byte("s1"))})
	table = table.With(BranchTableEntry{UUID: "uuid-a", Name: "alpha", SessionHash: codec.HashBytes([]byte("s2"))})
	require.Len(t, table.Entries, 1)
	entry, ok := table.ByUUID("uuid-a")
	require.True(t, ok)
	require.Equal(t, codec.HashBytes([]byte("s2")), entry.SessionHash)
}

func TestBranchTableWithoutUUID(t *testing.T) {
	table := BranchTable{}
	table = table.With(BranchTableEntry{UUID: "uuid-a", Name: "alpha"})
	table = table.With(BranchTableEntry{UUID: "uuid-b", Name: "beta"})
	table = table.WithoutUUID("uuid-a")
	require.Len(t, table.Entries, 1)
	_, ok := table.ByUUID("uuid-a")
	require.False(t, ok)
	_, ok = table.ByName("beta")
	require.True(t, ok)
}

func TestDecodeWrongKindFails(t *testing.T) {
	c := Commit{Message: "x", Kind: CommitNormal}
	data, _, err := c.Encode()
	require.NoError(t, err)
	_, err = DecodeFile(data)
	require.ErrorIs(t, err, codec.ErrCorrupt)
}
