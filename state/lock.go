// ABOUTME: Advisory per-source lock files
// ABOUTME: Prevents overlapping sync cycles for the same source
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// staleLockAge is how old a lock file must be before it is presumed
// abandoned by a crashed cycle and stolen.
const staleLockAge = time.Hour

// Lock is an advisory source-scoped lock backed by an exclusively-created
// file. It guards the sync state file against concurrent cycles; it is not
// a defense against hostile processes.
type Lock struct {
	path string
}

// AcquireLock takes the advisory lock for a source. It fails when another
// cycle currently holds the lock, unless the lock file is old enough to be
// considered stale, in which case it is removed and acquisition retried
// once.
func AcquireLock(dir string, source string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.lock", source))

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			_ = f.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil || time.Since(info.ModTime()) < staleLockAge {
			return nil, fmt.Errorf("source %s is locked by another sync cycle", source)
		}
		// Stale lock from a crashed cycle; remove and retry.
		_ = os.Remove(path)
	}

	return nil, fmt.Errorf("source %s is locked by another sync cycle", source)
}

// Release removes the lock file. Safe to call once per acquired lock.
func (l *Lock) Release() {
	if l != nil {
		_ = os.Remove(l.path)
	}
}
