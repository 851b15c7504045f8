// Package scratch implements the directory of fixed-name scratch pointer
// files (spec §4.3): active_session, action_log_head, redo_stack_head,
// settings. Each holds a single hash; updates go temp-write → fsync →
// atomic rename so a concurrent reader always sees either the old or the
// new value, never a torn one.
package scratch

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vexvcs/vex/internal/codec"
)

// Names of the fixed scratch pointers (spec §3).
const (
	ActiveSession  = "active_session"
	ActionLogHead  = "action_log_head"
	RedoStackHead  = "redo_stack_head"
	Settings       = "settings"
)

// All lists every known pointer name, used by recovery and by tests that
// want to snapshot the whole scratch directory.
var All = []string{ActiveSession, ActionLogHead, RedoStackHead, Settings}

// ErrNotSet is returned by Get when the pointer file does not exist yet
// (e.g. action_log_head before the first commit).
var ErrNotSet = errors.New("scratch: pointer not set")

// Store is the scratch-pointer directory.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir, creating dir if necessary.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scratch: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Get reads the current hash held by a pointer.
func (s *Store) Get(name string) (codec.Hash, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return codec.Hash{}, ErrNotSet
		}
		return codec.Hash{}, fmt.Errorf("scratch: read %s: %w", name, err)
	}
	h, err := codec.ParseHash(string(data))
	if err != nil {
		return codec.Hash{}, fmt.Errorf("scratch: parse %s: %w", name, err)
	}
	return h, nil
}

// GetOrZero is Get but returns the zero Hash instead of ErrNotSet, for
// pointers where "unset" and "zero" are the same logical state.
func (s *Store) GetOrZero(name string) (codec.Hash, error) {
	h, err := s.Get(name)
	if errors.Is(err, ErrNotSet) {
		return codec.Hash{}, nil
	}
	return h, err
}

// Set atomically overwrites a pointer (temp write → fsync → rename).
func (s *Store) Set(name string, h codec.Hash) error {
	return s.SetRaw(name, []byte(hex.EncodeToString(h[:])))
}

// SetRaw is Set for pointers that don't hold a bare Hash but a small
// serialized tuple (none currently do, but the protocol is identical).
func (s *Store) SetRaw(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("scratch: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("scratch: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("scratch: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("scratch: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("scratch: rename: %w", err)
	}
	return nil
}

// Delete removes a pointer entirely. No command calls it (undoing `init`
// zeroes pointers rather than deleting them); it is exercised by tests.
func (s *Store) Delete(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("scratch: remove %s: %w", name, err)
	}
	return nil
}

// Dir reports the scratch directory's path, used by the transaction layer
// to colocate pending/ and plan alongside it.
func (s *Store) Dir() string { return s.dir }
