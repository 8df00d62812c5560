//go:build linux

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const (
	lockRetryCount    = 30
	lockRetryInterval = time.Second
)

// acquireLock takes an exclusive advisory lock on path so only one
// reconciliation runs per host. The returned func releases it. Waiting for
// the lock stops when ctx is done.
func acquireLock(ctx context.Context, path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	var lockErr error
	for i := 0; i < lockRetryCount; i++ {
		lockErr = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if lockErr == nil {
			return func() {
				unix.Flock(fd, unix.LOCK_UN)
				unix.Close(fd)
			}, nil
		}
		if !errors.Is(lockErr, unix.EWOULDBLOCK) && !errors.Is(lockErr, unix.EAGAIN) {
			unix.Close(fd)
			return nil, fmt.Errorf("lock error: %w", lockErr)
		}
		if i%5 == 0 {
			Printer.Fprintf(os.Stderr, "Waiting for another run to release %s... (%d/%d)\n", path, i, lockRetryCount)
		}
		t := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			unix.Close(fd)
			return nil, fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case <-t.C:
		}
	}

	unix.Close(fd)
	return nil, fmt.Errorf("another reconciliation holds %s", path)
}
