//go:build !windows

package scheduler

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// FileLock is a non-blocking flock(2) lock. While held, the file carries
// the holder's LockOwner record.
type FileLock struct {
	path string
	file *os.File
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
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("open lock %s: %w", l.path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("flock %s: %w", l.path, err)
	}
	if err := writeOwner(f, job); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return false, fmt.Errorf("record lock owner: %w", err)
	}
	l.file = f
	return true, nil
}

// Unlock clears the owner record and releases the lock. The file itself is
// left in place; removing it would race with a process opening it.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	_ = f.Truncate(0)
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
	return err
}
