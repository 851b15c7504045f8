// Package codec implements Vex's canonical, tagged, JSON-like encoding
// (spec §4.1): every object kind is encoded to a single deterministic byte
// form, carries its kind tag at offset 0, and is addressed by the
// domain-separated hash of "kind ‖ canonical_bytes".
package codec

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// Kind tags every persisted CAS object (spec §3 "Object kinds").
type Kind string

const (
	KindBlob      Kind = "blob"
	KindTree      Kind = "tree"
	KindFile      Kind = "file"
	KindCommit    Kind = "commit"
	KindChangelog Kind = "changelog"
	KindBranch    Kind = "branch"
	KindSession   Kind = "session"
	KindManifest  Kind = "manifest"
	KindStash     Kind = "stash"
	KindSettings  Kind = "settings"
	KindAction      Kind = "action"
	KindRedoEntry   Kind = "redo_entry"
	KindBranchTable Kind = "branch_table"
)

// knownKinds lets Decode reject forward-incompatible tags with CorruptObject
// instead of silently misinterpreting them (spec §4.1).
var knownKinds = map[Kind]bool{
	KindBlob: true, KindTree: true, KindFile: true, KindCommit: true,
	KindChangelog: true, KindBranch: true, KindSession: true,
	KindManifest: true, KindStash: true, KindSettings: true,
	KindAction: true, KindRedoEntry: true, KindBranchTable: true,
}

// HashSize is the width of a Vex object hash (spec §4.1: 32 bytes).
const HashSize = 32

// Hash is a domain-separated content hash, presented as lowercase hex.
type Hash [HashSize]byte

// ZeroHash is the sentinel for "no object" (e.g. a commit with no parent).
var ZeroHash Hash

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(data []byte) error {
	parsed, err := ParseHash(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a full lowercase-hex hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("codec: wrong hash length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("codec: invalid hash %q: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

// HashBytes computes the domain-separated hash of a fully tagged object,
// i.e. of "kind ‖ canonical_bytes" as a single buffer (the tag is already at
// offset 0 of data, see Encode). The CAS layer uses this directly: it never
// looks inside the envelope, it just hashes whatever bytes it is given.
func HashBytes(data []byte) Hash {
	return blake3.Sum256(data)
}

// Encode canonically serializes v, prefixed by its kind tag, and returns the
// encoded bytes along with their hash. v must encode to a JSON object (used
// for every non-Blob kind); Blobs use EncodeBlob instead since their
// payload is opaque bytes, not structured data.
func Encode(kind Kind, v any) ([]byte, Hash, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, Hash{}, fmt.Errorf("codec: marshal %s: %w", kind, err)
	}
	// encoding/json sorts map[string]X keys and preserves struct field
	// order, which is what makes this form canonical: there is exactly one
	// byte representation for a given logical value.
	out := make([]byte, 0, len(kind)+1+len(body))
	out = append(out, byte(len(kind)))
	out = append(out, kind...)
	out = append(out, body...)
	return out, HashBytes(out), nil
}

// rawBlobThreshold is the size above which a Blob is stored header+raw
// instead of JSON-base64-embedded (spec §4.1).
const rawBlobThreshold = 1 << 20 // 1 MiB

// EncodeBlob encodes opaque file contents. Small blobs are embedded as
// base64 inside a JSON envelope so the store stays human-debuggable; large
// blobs are stored as a small fixed header followed by the raw bytes.
func EncodeBlob(data []byte) ([]byte, Hash, error) {
	if len(data) <= rawBlobThreshold {
		return Encode(KindBlob, blobEnvelope{Raw: false, Data: data})
	}
	out := make([]byte, 0, len(KindBlob)+1+1+len(data))
	out = append(out, byte(len(KindBlob)))
	out = append(out, KindBlob...)
	out = append(out, rawBlobMarker)
	out = append(out, data...)
	return out, HashBytes(out), nil
}

const rawBlobMarker = 0x00

type blobEnvelope struct {
	Raw  bool   `json:"raw,omitempty"`
	Data []byte `json:"data"`
}

// DecodeBlob extracts the payload previously written by EncodeBlob.
func DecodeBlob(data []byte) ([]byte, error) {
	kind, body, err := splitEnvelope(data)
	if err != nil {
		return nil, err
	}
	if kind != KindBlob {
		return nil, fmt.Errorf("codec: expected blob, got %s", kind)
	}
	if len(body) > 0 && body[0] == rawBlobMarker {
		return append([]byte(nil), body[1:]...), nil
	}
	var env blobEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: blob envelope: %v", ErrCorrupt, err)
	}
	return env.Data, nil
}

// ErrCorrupt marks a decode failure that the caller should treat as
// spec §7's CorruptObject.
var ErrCorrupt = fmt.Errorf("codec: corrupt object")

// Decode splits a tagged byte blob into its kind and JSON body, validating
// that the kind is one Decode recognizes (spec §4.1: "forward-compatible
// unknown tags cause a read to fail with CorruptObject").
func Decode(data []byte) (Kind, json.RawMessage, error) {
	kind, body, err := splitEnvelope(data)
	if err != nil {
		return "", nil, err
	}
	if !knownKinds[kind] {
		return "", nil, fmt.Errorf("%w: unknown kind %q", ErrCorrupt, kind)
	}
	return kind, body, nil
}

func splitEnvelope(data []byte) (Kind, []byte, error) {
	if len(data) < 1 {
		return "", nil, fmt.Errorf("%w: empty object", ErrCorrupt)
	}
	n := int(data[0])
	if len(data) < 1+n {
		return "", nil, fmt.Errorf("%w: truncated kind tag", ErrCorrupt)
	}
	kind := Kind(data[1 : 1+n])
	return kind, data[1+n:], nil
}

// DecodeInto decodes a non-Blob object of the expected kind into v.
func DecodeInto(data []byte, expect Kind, v any) error {
	kind, body, err := Decode(data)
	if err != nil {
		return err
	}
	if kind != expect {
		return fmt.Errorf("%w: expected %s, got %s", ErrCorrupt, expect, kind)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// VerifyHash recomputes data's hash and compares it to want, returning
// CorruptObject-flavored error text on mismatch (spec §4.2 "fails with ...
// CorruptObject (hash mismatch on read)").
func VerifyHash(data []byte, want Hash) error {
	got := HashBytes(data)
	if !bytes.Equal(got[:], want[:]) {
		return fmt.Errorf("%w: hash mismatch: want %s got %s", ErrCorrupt, want, got)
	}
	return nil
}
