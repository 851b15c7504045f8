package cas

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vexvcs/vex/internal/codec"
)

// FSStore is the on-disk CAS layout from spec §6:
//
//	cas/<first-2-hex>/<remaining-62-hex>
//
// Writes go to a temp file in the same directory, are fsynced, then renamed
// into place (spec §4.2): the rename is what makes a concurrent reader see
// either nothing or a complete object, never a torn write. This is built
// directly on os rather than on the higher-level posixfs.FS the rest of the
// engine uses for working-copy I/O: the commit protocol in spec §4.4 needs
// an exact fsync-before-rename ordering, and posixfs's portable FS
// abstraction (used elsewhere for traversing/mirroring working-copy trees)
// doesn't expose that ordering as a primitive.
type FSStore struct {
	dir string
}

// NewFSStore opens (creating if necessary) a CAS rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cas: mkdir %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) pathFor(h Hash) (dir, full string) {
	hex := hex.EncodeToString(h[:])
	dir = filepath.Join(s.dir, hex[:2])
	full = filepath.Join(dir, hex[2:])
	return dir, full
}

func (s *FSStore) Put(ctx context.Context, data []byte) (Hash, error) {
	h := hashOf(data)
	dir, full := s.pathFor(h)
	if _, err := os.Stat(full); err == nil {
		return h, nil // idempotent (spec §4.2: "put is idempotent")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Hash{}, fmt.Errorf("cas: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return Hash{}, fmt.Errorf("cas: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Hash{}, fmt.Errorf("cas: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Hash{}, fmt.Errorf("cas: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Hash{}, fmt.Errorf("cas: close: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return Hash{}, fmt.Errorf("cas: rename: %w", err)
	}
	return h, nil
}

func (s *FSStore) Get(ctx context.Context, h Hash) ([]byte, error) {
	_, full := s.pathFor(h)
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmtNotFound(h)
		}
		return nil, fmt.Errorf("cas: read %s: %w", h, err)
	}
	if err := codec.VerifyHash(data, h); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *FSStore) Has(ctx context.Context, h Hash) (bool, error) {
	_, full := s.pathFor(h)
	_, err := os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("cas: stat %s: %w", h, err)
}

func (s *FSStore) List(ctx context.Context, fn func(Hash) error) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("cas: readdir %s: %w", s.dir, err)
	}
	for _, prefixEnt := range entries {
		if !prefixEnt.IsDir() {
			continue
		}
		prefix := prefixEnt.Name()
		sub := filepath.Join(s.dir, prefix)
		leaves, err := os.ReadDir(sub)
		if err != nil {
			return fmt.Errorf("cas: readdir %s: %w", sub, err)
		}
		for _, leaf := range leaves {
			if leaf.IsDir() {
				continue
			}
			h, err := codec.ParseHash(prefix + leaf.Name())
			if err != nil {
				continue // skip stray temp files
			}
			if err := fn(h); err != nil {
				return err
			}
		}
	}
	return nil
}
