//go:build linux

package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "originguard.lock")

	release, err := acquireLock(context.Background(), path)
	require.NoError(t, err)
	release()

	release, err = acquireLock(context.Background(), path)
	require.NoError(t, err, "the lock is free again after release")
	release()
}

func TestAcquireLock_StopsWaitingWhenCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "originguard.lock")

	release, err := acquireLock(context.Background(), path)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = acquireLock(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), lockRetryInterval*2, "must not wait out the retry budget")
}
