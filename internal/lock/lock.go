// Package lock keeps two runs from writing the same report directory at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside the report directory.
const FileName = ".sitecheck.lock"

// ErrAlreadyLocked is returned when another run holds the report directory.
var ErrAlreadyLocked = errors.New("another sitecheck run is writing to the report directory")

// Flocker is the subset of flock.Flock the lock needs.
type Flocker interface {
	TryLock() (bool, error)
	Unlock() error
}

// Lock is a fail-fast advisory lock.
type Lock struct {
	flocker Flocker
	path    string
}

// New wraps f.
func New(f Flocker) *Lock {
	return &Lock{flocker: f}
}

// ForDir returns a lock on dir's lock file, creating dir if needed.
func ForDir(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	return &Lock{flocker: flock.New(path), path: path}, nil
}

// Path is the lock file path, empty for a lock built with New.
func (l *Lock) Path() string { return l.path }

// TryLock acquires the lock without blocking.
func (l *Lock) TryLock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := l.flocker.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !ok {
		return ErrAlreadyLocked
	}
	return nil
}

// Unlock releases the lock. The lock file stays behind.
func (l *Lock) Unlock() error {
	if err := l.flocker.Unlock(); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}
