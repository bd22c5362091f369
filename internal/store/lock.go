package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// LockFileName is created inside the data directory.
const LockFileName = ".index.lock"

// DataLock is a cross-process lock on a data directory. It keeps two
// indexing processes from writing the same store.
type DataLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataLock creates a lock for dir. Nothing is acquired yet.
func NewDataLock(dir string) *DataLock {
	lockPath := filepath.Join(dir, LockFileName)
	return &DataLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock acquires the lock without blocking. It fails with
// ErrCodeStoreLocked when another process holds it.
func (l *DataLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return vrerrors.IOError("failed to create lock directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return vrerrors.IOError("failed to acquire lock", err)
	}
	if !acquired {
		return vrerrors.New(vrerrors.ErrCodeStoreLocked,
			fmt.Sprintf("another process is indexing (%s)", l.path), nil).
			WithSuggestion("Wait for the other run to finish, or remove the lock file if no vaultrag process is running")
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *DataLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DataLock) Path() string {
	return l.path
}

// IsLocked reports whether this DataLock holds the lock.
func (l *DataLock) IsLocked() bool {
	return l.locked
}
