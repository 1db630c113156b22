// Package localfile writes downloads to the local filesystem without ever
// exposing a partially written file under its final name.
package localfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another download holds the destination.
var ErrLocked = errors.New("local file is locked by another transfer")

const (
	partSuffix = ".part"
	lockSuffix = ".lock"

	pollInterval = 10 * time.Millisecond
)

// File is a download in progress. Data goes to "<path>.part"; Commit
// renames it to path and Abort removes it. Both release the lock on
// "<path>.lock" taken by Create.
type File struct {
	path string
	part *os.File
	lock *flock.Flock
	done bool
}

// Create locks path for writing and opens its part file. It waits for a
// concurrent writer of the same path until ctx is done.
func Create(ctx context.Context, path string) (*File, error) {
	if path == "" {
		return nil, errors.New("local path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create local directory: %w", err)
		}
	}

	lock := flock.New(path + lockSuffix)
	locked, err := lock.TryLockContext(ctx, pollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	part, err := os.OpenFile(path+partSuffix, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		release(lock)
		return nil, fmt.Errorf("failed to create local file: %w", err)
	}
	return &File{path: path, part: part, lock: lock}, nil
}

// Path returns the final destination.
func (f *File) Path() string {
	return f.path
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	return f.part.Write(p)
}

// Commit flushes the part file and moves it to its final name.
func (f *File) Commit() error {
	if f.done {
		return nil
	}
	f.done = true
	defer release(f.lock)

	if err := f.part.Sync(); err != nil {
		_ = f.part.Close()
		_ = os.Remove(f.part.Name())
		return fmt.Errorf("sync local file: %w", err)
	}
	if err := f.part.Close(); err != nil {
		_ = os.Remove(f.part.Name())
		return fmt.Errorf("close local file: %w", err)
	}
	if err := os.Rename(f.part.Name(), f.path); err != nil {
		_ = os.Remove(f.part.Name())
		return fmt.Errorf("rename local file: %w", err)
	}
	return nil
}

// Abort discards the part file.
func (f *File) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	defer release(f.lock)

	_ = f.part.Close()
	if err := os.Remove(f.part.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// release unlocks the destination. The lock file stays in place: removing
// it would let a waiting writer and a new one lock different inodes.
func release(lock *flock.Flock) {
	_ = lock.Unlock()
}
