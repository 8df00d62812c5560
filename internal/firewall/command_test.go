//go:build linux
// +build linux

package firewall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealCommandRunner(t *testing.T) {
	r := &RealCommandRunner{}
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, "true"))

	err := r.Run(ctx, "sh", "-c", "echo nope >&2; exit 3")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.Code)
	assert.Equal(t, "nope\n", ee.Output)
	assert.True(t, IsExitError(err))

	out, err := r.Output(ctx, "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	require.NoError(t, r.RunInput(ctx, "abc", "grep", "-q", "b"))
	assert.True(t, IsExitError(r.RunInput(ctx, "abc", "grep", "-q", "z")))

	err = r.Run(ctx, "/nonexistent/binary")
	require.Error(t, err)
	assert.False(t, IsExitError(err))
}

func TestRealCommandRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&RealCommandRunner{}).Run(ctx, "true")
	assert.ErrorIs(t, err, context.Canceled)
}
