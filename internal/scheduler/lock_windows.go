//go:build windows

package scheduler

import (
	"errors"
	"fmt"
	"os"
)

// FileLock is a non-blocking lock built on exclusive file creation. The
// file exists, holding the LockOwner record, only while the lock is held.
type FileLock struct {
	path   string
	locked bool
}

// NewFileLock creates a FileLock for path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// TryLock acquires the lock for job without blocking. It reports false when
// another process holds it.
func (l *FileLock) TryLock(job string) (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create lock %s: %w", l.path, err)
	}
	werr := writeOwner(f, job)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("record lock owner: %w", err)
	}
	l.locked = true
	return true, nil
}

// Unlock removes the lock file.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
