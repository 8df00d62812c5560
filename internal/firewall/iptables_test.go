package firewall

import (
	"context"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/originguard/internal/logging"
	"grimm.is/originguard/internal/policy"
)

func newTestIptables(runner CommandRunner) *IptablesBackend {
	return NewIptablesBackend(DefaultBinaries(), runner, logging.Discard())
}

func iptablesPolicy() policy.Policy {
	pol := policy.Default()
	pol.Hooks = []policy.Hook{policy.HookInput}
	return pol
}

func TestIptablesQuery(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Output", "iptables", "-S", "gate_allow").Return([]byte(
		"-N gate_allow\n-A gate_allow -s 10.0.0.10/32 -j ACCEPT\n-A gate_allow -s 10.0.0.9/32 -j ACCEPT\n-A gate_allow -s 10.8.0.0/16 -j ACCEPT\n"), nil)
	runner.On("Output", "iptables", "-S", "gate").Return([]byte("-N gate\n-A gate -j gate_allow\n-A gate -j DROP\n"), nil)
	runner.On("Run", "iptables", "-C", "INPUT", "-p", "tcp", "-m", "multiport", "--dports", "80,443", "-j", "gate").Return(nil)
	runner.On("Output", "iptables", "-S", "INPUT").Return([]byte(
		"-P INPUT ACCEPT\n-A INPUT -p tcp -m multiport --dports 80,443 -j gate\n-A INPUT -p tcp -m multiport --dports 443 -j gate\n"), nil)

	runner.On("Output", "ip6tables", "-S", "gate_allow").Return(nil, &ExitError{Code: 1})
	runner.On("Output", "ip6tables", "-S", "gate").Return(nil, &ExitError{Code: 1})
	runner.On("Run", "ip6tables", "-C", "INPUT", "-p", "tcp", "-m", "multiport", "--dports", "80,443", "-j", "gate").Return(&ExitError{Code: 2})
	runner.On("Output", "ip6tables", "-S", "INPUT").Return([]byte("-P INPUT ACCEPT\n"), nil)

	st, err := newTestIptables(runner).Query(context.Background(), iptablesPolicy())

	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.9", "10.0.0.10"}, st.V4.Strings())
	assert.True(t, st.V6.Empty())
	assert.False(t, st.Bootstrapped)
	assert.True(t, st.Has("ipv4 jump"))
	assert.False(t, st.Has("ipv6 jump"))
	assert.True(t, st.Has("ipv4 stale -p tcp -m multiport --dports 443 -j gate"))
}

func TestIptablesPlanBootstrap(t *testing.T) {
	b := newTestIptables(new(MockCommandRunner))
	pol := iptablesPolicy()

	st := State{}
	st.mark(famKey(policy.FamilyV4, chainKey("gate_allow")), true)
	st.mark(famKey(policy.FamilyV4, "jump"), true)
	st.mark("ipv4 stale -p tcp -m multiport --dports 443 -j gate", true)
	st.mark("ipv4 stale -p tcp -m multiport --dports 80,443 -j gate", true)

	tx, err := b.PlanBootstrap(pol, st)
	require.NoError(t, err)
	require.Len(t, tx.Steps, 2)

	v4 := tx.Steps[0]
	assert.Equal(t, "iptables-restore", v4.Command)
	assert.Equal(t, []string{"--noflush"}, v4.Args)
	assert.Equal(t, `*filter
:gate - [0:0]
-A gate -j gate_allow
-A gate -j DROP
-D INPUT -p tcp -m multiport --dports 443 -j gate
COMMIT
`, v4.Input)

	v6 := tx.Steps[1]
	assert.Equal(t, "ip6tables-restore", v6.Command)
	assert.Equal(t, `*filter
:gate - [0:0]
:gate_allow - [0:0]
-A gate -j DROP
-I INPUT 1 -p tcp -m multiport --dports 80,443 -j gate
COMMIT
`, v6.Input)
}

func TestIptablesPlanBootstrap_IPv6Allow(t *testing.T) {
	b := newTestIptables(new(MockCommandRunner))
	pol := iptablesPolicy()
	pol.IPv6 = policy.IPv6Allow

	tx, err := b.PlanBootstrap(pol, State{})
	require.NoError(t, err)

	assert.Contains(t, tx.Steps[1].Input, "-A gate -j gate_allow\n")
}

func TestIptablesPlanBootstrap_NameTooLong(t *testing.T) {
	b := newTestIptables(new(MockCommandRunner))
	pol := iptablesPolicy()
	pol.Chain = "a_very_long_chain_name_xx"

	_, err := b.PlanBootstrap(pol, State{})
	assert.ErrorIs(t, err, policy.ErrInvalidName)
}

func allowState(addrs ...string) State {
	st := State{Rules: make(map[policy.Address]int)}
	for _, a := range addrs {
		st.Rules[netip.MustParseAddr(a)]++
	}
	return st
}

func TestIptablesPlanAddRemove(t *testing.T) {
	b := newTestIptables(new(MockCommandRunner))
	pol := iptablesPolicy()

	add := b.PlanAdd(pol, State{}, policy.FamilyV4, policy.MustParseAddressSet("1.1.1.1", "2.2.2.2").Addrs())
	require.Len(t, add.Steps, 1)
	assert.Equal(t, "iptables-restore", add.Steps[0].Command)
	assert.Equal(t, []string{"--noflush"}, add.Steps[0].Args)
	assert.Equal(t, "*filter\n-A gate_allow -s 1.1.1.1 -j ACCEPT\n-A gate_allow -s 2.2.2.2 -j ACCEPT\nCOMMIT\n", add.Steps[0].Input)

	rm := b.PlanRemove(pol, allowState("2001:db8::1"), policy.FamilyV6, policy.MustParseAddressSet("2001:db8::1").Addrs())
	assert.Equal(t, "ip6tables-restore", rm.Steps[0].Command)
	assert.Equal(t, "*filter\n-D gate_allow -s 2001:db8::1 -j ACCEPT\nCOMMIT\n", rm.Steps[0].Input)

	assert.True(t, b.PlanAdd(pol, State{}, policy.FamilyV4, nil).Empty())
}

func TestIptablesPlanAdd_SkipsExistingRules(t *testing.T) {
	b := newTestIptables(new(MockCommandRunner))
	pol := iptablesPolicy()
	st := allowState("192.0.2.1")

	tx := b.PlanAdd(pol, st, policy.FamilyV4, policy.MustParseAddressSet("192.0.2.1", "192.0.2.2").Addrs())
	require.Len(t, tx.Steps, 1)
	assert.Equal(t, "*filter\n-A gate_allow -s 192.0.2.2 -j ACCEPT\nCOMMIT\n", tx.Steps[0].Input)

	assert.True(t, b.PlanAdd(pol, st, policy.FamilyV4, policy.MustParseAddressSet("192.0.2.1").Addrs()).Empty(),
		"an address with a rule must not get a second one")
}

func TestIptablesPlanRemove_SkipsMissingRules(t *testing.T) {
	b := newTestIptables(new(MockCommandRunner))
	pol := iptablesPolicy()

	tx := b.PlanRemove(pol, allowState("198.51.100.8"), policy.FamilyV4, policy.MustParseAddressSet("198.51.100.7", "198.51.100.8").Addrs())
	require.Len(t, tx.Steps, 1)
	assert.Equal(t, "*filter\n-D gate_allow -s 198.51.100.8 -j ACCEPT\nCOMMIT\n", tx.Steps[0].Input)

	assert.True(t, b.PlanRemove(pol, State{}, policy.FamilyV4, policy.MustParseAddressSet("198.51.100.7").Addrs()).Empty(),
		"deleting a missing rule would fail the whole COMMIT")
}

func TestIptablesPlanRemove_DeletesEveryDuplicate(t *testing.T) {
	b := newTestIptables(new(MockCommandRunner))

	tx := b.PlanRemove(iptablesPolicy(), allowState("203.0.113.5", "203.0.113.5"), policy.FamilyV4, policy.MustParseAddressSet("203.0.113.5").Addrs())
	require.Len(t, tx.Steps, 1)
	assert.Equal(t, "*filter\n-D gate_allow -s 203.0.113.5 -j ACCEPT\n-D gate_allow -s 203.0.113.5 -j ACCEPT\nCOMMIT\n", tx.Steps[0].Input)
}

func TestIptablesPlanAdd_Chunked(t *testing.T) {
	b := newTestIptables(new(MockCommandRunner))
	addrs := make([]policy.Address, ChunkSize+1)
	for i := range addrs {
		addrs[i] = netip.AddrFrom4([4]byte{10, 1, byte(i >> 8), byte(i)})
	}

	tx := b.PlanAdd(iptablesPolicy(), State{}, policy.FamilyV4, addrs)
	require.Len(t, tx.Steps, 1)
	assert.Equal(t, 2, strings.Count(tx.Steps[0].Input, "COMMIT\n"))
	assert.Equal(t, ChunkSize+1, strings.Count(tx.Steps[0].Input, "-A gate_allow"))
}

func TestIptablesQuery_CountsDuplicateRules(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Output", "iptables", "-S", "gate_allow").Return([]byte(
		"-N gate_allow\n-A gate_allow -s 203.0.113.5/32 -j ACCEPT\n-A gate_allow -s 203.0.113.5/32 -j ACCEPT\n"), nil)
	runner.On("Output", "iptables", "-S", "gate").Return([]byte("-N gate\n"), nil)
	runner.On("Run", "iptables", "-C", "INPUT", "-p", "tcp", "-m", "multiport", "--dports", "80,443", "-j", "gate").Return(nil)
	runner.On("Output", "iptables", "-S", "INPUT").Return([]byte("-P INPUT ACCEPT\n"), nil)
	runner.On("Output", "ip6tables", "-S", "gate_allow").Return(nil, &ExitError{Code: 1})
	runner.On("Output", "ip6tables", "-S", "gate").Return(nil, &ExitError{Code: 1})
	runner.On("Run", "ip6tables", "-C", "INPUT", "-p", "tcp", "-m", "multiport", "--dports", "80,443", "-j", "gate").Return(&ExitError{Code: 1})
	runner.On("Output", "ip6tables", "-S", "INPUT").Return([]byte("-P INPUT ACCEPT\n"), nil)

	b := newTestIptables(runner)
	pol := iptablesPolicy()
	st, err := b.Query(context.Background(), pol)
	require.NoError(t, err)

	assert.Equal(t, []string{"203.0.113.5"}, st.V4.Strings())
	assert.Equal(t, 2, st.Rules[netip.MustParseAddr("203.0.113.5")])

	tx := b.PlanRemove(pol, st, policy.FamilyV4, st.V4.Addrs())
	assert.Equal(t, 2, strings.Count(tx.Steps[0].Input, "-D gate_allow -s 203.0.113.5 -j ACCEPT"))
}

func TestParseAllowRules(t *testing.T) {
	out := "-N gate_allow\n-A gate_allow -s 2001:db8::1/128 -j ACCEPT\n-A gate_allow -s 1.2.3.4/32 -j RETURN\n-A other -s 5.5.5.5/32 -j ACCEPT\n-A gate_allow -s 6.6.6.6 -j ACCEPT\n-A gate_allow -s 6.6.6.6/32 -j ACCEPT\n"
	assert.Equal(t, map[policy.Address]int{
		netip.MustParseAddr("6.6.6.6"):     2,
		netip.MustParseAddr("2001:db8::1"): 1,
	}, parseAllowRules(out, "gate_allow"))
}
