package firewall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/originguard/internal/policy"
)

func expectList(runner *MockCommandRunner, kind, name string, out []byte, err error) {
	runner.On("Output", "nft", "-j", "list", kind, "inet", "bop", name).Return(out, err)
}

func TestCLIReader_ReadState(t *testing.T) {
	runner := new(MockCommandRunner)
	expectList(runner, "set", "edge_v4", mustJSONSet("edge_v4",
		`"10.0.0.10"`, `"10.0.0.9"`, `{"elem":{"val":"192.0.2.1","counter":{"packets":0,"bytes":0}}}`, `{"prefix":{"addr":"10.8.0.0","len":16}}`), nil)
	expectList(runner, "set", "edge_v6", mustJSONSet("edge_v6", `"2001:db8::1"`), nil)
	expectList(runner, "chain", "gate", []byte(`{"nftables":[{"chain":{"name":"gate"}}]}`), nil)
	expectList(runner, "chain", "gate_pre", []byte(`{"nftables":[{"chain":{"name":"gate_pre"}}]}`), nil)

	st, err := NewCLIReader("nft", runner).ReadState(context.Background(), policy.Default())

	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.9", "10.0.0.10", "192.0.2.1"}, st.V4.Strings())
	assert.Equal(t, []string{"2001:db8::1"}, st.V6.Strings())
	assert.True(t, st.Bootstrapped)
	assert.Equal(t, []string{"10.0.0.9", "10.0.0.10", "192.0.2.1", "2001:db8::1"}, st.Addresses().Strings())
}

func TestCLIReader_MissingTable(t *testing.T) {
	runner := new(MockCommandRunner)
	missing := &ExitError{Code: 1, Output: "Error: No such file or directory"}
	expectList(runner, "set", "edge_v4", nil, missing)
	expectList(runner, "set", "edge_v6", nil, missing)
	expectList(runner, "chain", "gate", nil, missing)
	expectList(runner, "chain", "gate_pre", nil, missing)

	st, err := NewCLIReader("nft", runner).ReadState(context.Background(), policy.Default())

	require.NoError(t, err)
	assert.True(t, st.V4.Empty())
	assert.True(t, st.V6.Empty())
	assert.False(t, st.Bootstrapped)
}

func TestCLIReader_OnlyConfiguredHooksRequired(t *testing.T) {
	runner := new(MockCommandRunner)
	expectList(runner, "set", "edge_v4", mustJSONSet("edge_v4"), nil)
	expectList(runner, "set", "edge_v6", mustJSONSet("edge_v6"), nil)
	expectList(runner, "chain", "gate", []byte(`{"nftables":[]}`), nil)
	expectList(runner, "chain", "gate_pre", nil, &ExitError{Code: 1})

	pol := policy.Default()
	pol.Hooks = []policy.Hook{policy.HookInput}

	st, err := NewCLIReader("nft", runner).ReadState(context.Background(), pol)

	require.NoError(t, err)
	assert.True(t, st.Bootstrapped)
	assert.False(t, st.Has(chainKey("gate_pre")))
}

func TestCLIReader_ToolMissing(t *testing.T) {
	runner := new(MockCommandRunner)
	expectList(runner, "set", "edge_v4", nil, errBoom)

	_, err := NewCLIReader("nft", runner).ReadState(context.Background(), policy.Default())

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.ErrorIs(t, err, errBoom)
}

func TestCLIReader_BadJSON(t *testing.T) {
	runner := new(MockCommandRunner)
	expectList(runner, "set", "edge_v4", []byte("not json"), nil)

	_, err := NewCLIReader("nft", runner).ReadState(context.Background(), policy.Default())
	assert.Error(t, err)
}
