// Package lockfile implements the repository-wide advisory lock from spec
// §5: mutating commands take it exclusively, read-only commands take it
// shared, and a contended exclusive acquisition surfaces as
// vexerr.ConcurrentWriter rather than blocking.
package lockfile

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/vexvcs/vex/internal/vexerr"
)

// Name is the lock file's fixed name under the repository's .vex directory.
const Name = "lock"

// Lock wraps a flock.Flock rooted at a repository's .vex/lock file.
type Lock struct {
	fl *flock.Flock
}

// Open returns a Lock for the repository at vexDir (a repo's ".vex"
// directory), without acquiring it.
func Open(vexDir string) *Lock {
	return &Lock{fl: flock.New(filepath.Join(vexDir, Name))}
}

// AcquireExclusive takes the lock for a mutating command. If another
// process already holds it, it returns vexerr.ConcurrentWriter immediately
// rather than blocking (spec §5: "a second command attempting a mutation
// fails fast").
func (l *Lock) AcquireExclusive() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return vexerr.IO("lock:exclusive", err)
	}
	if !ok {
		return vexerr.ConcurrentWriter("lock:exclusive", fmt.Errorf("repository is locked by another process"))
	}
	return nil
}

// AcquireShared takes the lock for a read-only command; it may coexist
// with other shared holders but not with an exclusive one.
func (l *Lock) AcquireShared() error {
	ok, err := l.fl.TryRLock()
	if err != nil {
		return vexerr.IO("lock:shared", err)
	}
	if !ok {
		return vexerr.ConcurrentWriter("lock:shared", fmt.Errorf("repository is locked exclusively by another process"))
	}
	return nil
}

// Release unlocks, whichever mode was acquired.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return vexerr.IO("lock:release", err)
	}
	return nil
}
