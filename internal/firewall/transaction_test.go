package firewall

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	addrs := make([]netip.Addr, 1030)
	for i := range addrs {
		addrs[i] = netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)})
	}

	chunks := chunk(addrs, ChunkSize)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 512)
	assert.Len(t, chunks[1], 512)
	assert.Len(t, chunks[2], 6)
	assert.Equal(t, addrs[1029], chunks[2][5])
	assert.Nil(t, chunk[netip.Addr](nil, ChunkSize))
}

func TestTransactionMerge(t *testing.T) {
	a := &Transaction{Kind: KindAdd, Steps: []Step{{Command: "nft", Args: []string{"-f", "-"}, Input: "add element a\n"}}}
	b := &Transaction{Kind: KindAdd, Steps: []Step{{Command: "nft", Args: []string{"-f", "-"}, Input: "add element b\n"}}}
	c := &Transaction{Kind: KindAdd, Steps: []Step{{Command: "ip6tables-restore", Args: []string{"--noflush"}, Input: "*filter\nCOMMIT\n"}}}

	a.Merge(b).Merge(c).Merge(nil).Merge(&Transaction{})

	require.Len(t, a.Steps, 2)
	assert.Equal(t, "add element a\nadd element b\n", a.Steps[0].Input)
	assert.Equal(t, "ip6tables-restore", a.Steps[1].Command)
}

func TestTransactionRender(t *testing.T) {
	tx := &Transaction{Steps: []Step{
		{Command: "nft", Args: []string{"-f", "-"}, Input: "add table inet bop"},
		{Command: "iptables", Args: []string{"-C", "INPUT", "-j", "gate chain"}},
	}}

	want := "# nft -f - <<EOF\nadd table inet bop\n# EOF\niptables -C INPUT -j 'gate chain'\n"
	assert.Equal(t, want, tx.Render())

	var empty *Transaction
	assert.True(t, empty.Empty())
	assert.Equal(t, "", empty.Render())
}

func TestApplySteps(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("RunInput", "script\n", "nft", "-f", "-").Return(nil).Once()
	runner.On("Run", "iptables", "-L").Return(&ExitError{Command: "iptables -L", Code: 3, Output: "permission denied\n"}).Once()

	tx := &Transaction{Steps: []Step{
		{Command: "nft", Args: []string{"-f", "-"}, Input: "script\n"},
		{Command: "iptables", Args: []string{"-L"}},
		{Command: "never", Args: nil},
	}}

	err := applySteps(context.Background(), runner, tx)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "iptables -L", be.Command)
	assert.Equal(t, "permission denied\n", be.Output)
	assert.Equal(t, "command iptables -L failed: exit status 3: permission denied", be.Error())
	runner.AssertExpectations(t)
	runner.AssertNotCalled(t, "Run", "never")
}

func TestApplySteps_Cancelled(t *testing.T) {
	runner := new(MockCommandRunner)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := applySteps(ctx, runner, &Transaction{Steps: []Step{{Command: "nft"}}})

	assert.True(t, errors.Is(err, context.Canceled))
	runner.AssertNotCalled(t, "Run", mock.Anything)
}

func TestBackendErrorWrapsCause(t *testing.T) {
	cause := errors.New("exec: \"nft\": executable file not found in $PATH")
	be := newBackendError("nft -f -", cause)
	assert.ErrorIs(t, be, cause)
	assert.Empty(t, be.Output)
}
