package firewall

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"grimm.is/originguard/internal/logging"
	"grimm.is/originguard/internal/policy"
)

const (
	allowSuffix   = "_allow"
	iptablesInput = "INPUT"
)

// IptablesBackend manages the policy with iptables-restore --noflush
// transactions, one per address family. Only the input hook is supported:
// the structural chain is jumped to from INPUT in the filter table.
type IptablesBackend struct {
	bins   Binaries
	runner CommandRunner
	logger *logging.Logger
}

// NewIptablesBackend creates an iptables backend.
func NewIptablesBackend(bins Binaries, runner CommandRunner, logger *logging.Logger) *IptablesBackend {
	if logger == nil {
		logger = logging.WithComponent("firewall")
	}
	return &IptablesBackend{bins: bins, runner: runner, logger: logger}
}

func (b *IptablesBackend) Name() string { return KindIptables }

func (b *IptablesBackend) iptables(f policy.Family) string {
	if f == policy.FamilyV6 {
		return b.bins.Ip6tables
	}
	return b.bins.Iptables
}

func (b *IptablesBackend) restore(f policy.Family) string {
	if f == policy.FamilyV6 {
		return b.bins.Ip6tablesRestore
	}
	return b.bins.IptablesRestore
}

func structuralChain(pol policy.Policy) string {
	return pol.ChainName(policy.HookInput)
}

func allowChain(pol policy.Policy) string {
	return structuralChain(pol) + allowSuffix
}

func jumpSpec(pol policy.Policy) []string {
	return []string{"-p", "tcp", "-m", "multiport", "--dports", pol.Normalize().PortList(), "-j", structuralChain(pol)}
}

func famKey(f policy.Family, key string) string {
	return f.String() + " " + key
}

// Query reads both allow chains, whether the structural chains exist and
// whether INPUT jumps to them.
func (b *IptablesBackend) Query(ctx context.Context, pol policy.Policy) (State, error) {
	var st State
	st.Bootstrapped = true

	for _, f := range policy.Families {
		bin := b.iptables(f)

		out, found, err := b.list(ctx, bin, allowChain(pol))
		if err != nil {
			return State{}, err
		}
		st.mark(famKey(f, chainKey(allowChain(pol))), found)
		rules := parseAllowRules(out, allowChain(pol))
		var hosts []netip.Addr
		for a, n := range rules {
			if policy.FamilyOf(a) != f {
				continue
			}
			if st.Rules == nil {
				st.Rules = make(map[policy.Address]int)
			}
			st.Rules[a] += n
			hosts = append(hosts, a)
		}
		addrs := policy.NewAddressSet(hosts...)
		if f == policy.FamilyV6 {
			st.V6 = addrs
		} else {
			st.V4 = addrs
		}

		_, found, err = b.list(ctx, bin, structuralChain(pol))
		if err != nil {
			return State{}, err
		}
		st.mark(famKey(f, chainKey(structuralChain(pol))), found)

		args := append([]string{"-C", iptablesInput}, jumpSpec(pol)...)
		err = b.runner.Run(ctx, bin, args...)
		switch {
		case err == nil:
			st.mark(famKey(f, "jump"), true)
		case IsExitError(err):
			st.mark(famKey(f, "jump"), false)
		default:
			return State{}, newBackendError(commandLine(bin, args), err)
		}

		out, _, err = b.list(ctx, bin, iptablesInput)
		if err != nil {
			return State{}, err
		}
		for _, spec := range staleJumps(out, pol) {
			st.mark(famKey(f, "stale "+spec), true)
		}

		for _, key := range []string{chainKey(allowChain(pol)), chainKey(structuralChain(pol)), "jump"} {
			if !st.Has(famKey(f, key)) {
				st.Bootstrapped = false
			}
		}
	}

	b.logger.Debug("Queried iptables", "chain", structuralChain(pol), "v4", st.V4.Len(), "v6", st.V6.Len(), "bootstrapped", st.Bootstrapped)
	return st, nil
}

// list runs iptables -S <chain>. A non-zero exit means the chain is missing.
func (b *IptablesBackend) list(ctx context.Context, bin, chain string) (string, bool, error) {
	out, err := b.runner.Output(ctx, bin, "-S", chain)
	if err != nil {
		if IsExitError(err) {
			return "", false, nil
		}
		return "", false, newBackendError(commandLine(bin, []string{"-S", chain}), err)
	}
	return string(out), true, nil
}

// PlanBootstrap rebuilds the structural chain for both families, declares
// the allow chain when missing and makes sure INPUT jumps to the structural
// chain for the protected ports.
func (b *IptablesBackend) PlanBootstrap(pol policy.Policy, state State) (*Transaction, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	if len(allowChain(pol)) > policy.MaxNameLen {
		return nil, fmt.Errorf("%w: chain %q leaves no room for the %s suffix", policy.ErrInvalidName, pol.Chain, allowSuffix)
	}
	if slices.Contains(pol.Hooks, policy.HookPrerouting) {
		b.logger.Warn("iptables backend only supports the input hook; prerouting is ignored")
	}

	tx := &Transaction{Backend: KindIptables, Kind: KindBootstrap}
	jump := strings.Join(jumpSpec(pol), " ")

	for _, f := range policy.Families {
		var lines []string
		lines = append(lines, "*filter", fmt.Sprintf(":%s - [0:0]", structuralChain(pol)))
		if !state.Has(famKey(f, chainKey(allowChain(pol)))) {
			lines = append(lines, fmt.Sprintf(":%s - [0:0]", allowChain(pol)))
		}
		if f == policy.FamilyV4 || pol.AllowsIPv6() {
			lines = append(lines, fmt.Sprintf("-A %s -j %s", structuralChain(pol), allowChain(pol)))
		}
		lines = append(lines, fmt.Sprintf("-A %s -j DROP", structuralChain(pol)))

		var stale []string
		prefix := famKey(f, "stale ")
		for key := range state.Present {
			if spec, ok := strings.CutPrefix(key, prefix); ok && spec != jump {
				stale = append(stale, spec)
			}
		}
		slices.Sort(stale)
		for _, spec := range stale {
			lines = append(lines, fmt.Sprintf("-D %s %s", iptablesInput, spec))
		}
		if !state.Has(famKey(f, "jump")) {
			lines = append(lines, fmt.Sprintf("-I %s 1 %s", iptablesInput, jump))
		}
		lines = append(lines, "COMMIT")

		tx.Steps = append(tx.Steps, b.restoreStep(f, lines))
	}
	return tx, nil
}

// PlanAdd appends ACCEPT rules to the allow chain, one COMMIT per chunk.
// Addresses that already have a rule are skipped.
func (b *IptablesBackend) PlanAdd(pol policy.Policy, state State, family policy.Family, addrs []policy.Address) *Transaction {
	var lines []string
	for _, a := range addrs {
		if state.Rules[a] == 0 {
			lines = append(lines, fmt.Sprintf("-A %s -s %s -j ACCEPT", allowChain(pol), a))
		}
	}
	return b.planRules(KindAdd, family, lines)
}

// PlanRemove deletes ACCEPT rules from the allow chain, one COMMIT per chunk.
// iptables-restore rejects a chunk that deletes a missing rule, so only
// rules seen by the query are deleted, once per duplicate.
func (b *IptablesBackend) PlanRemove(pol policy.Policy, state State, family policy.Family, addrs []policy.Address) *Transaction {
	var lines []string
	for _, a := range addrs {
		for range state.Rules[a] {
			lines = append(lines, fmt.Sprintf("-D %s -s %s -j ACCEPT", allowChain(pol), a))
		}
	}
	return b.planRules(KindRemove, family, lines)
}

func (b *IptablesBackend) planRules(kind string, family policy.Family, rules []string) *Transaction {
	tx := &Transaction{Backend: KindIptables, Kind: kind}
	var lines []string
	for _, c := range chunk(rules, ChunkSize) {
		lines = append(lines, "*filter")
		lines = append(lines, c...)
		lines = append(lines, "COMMIT")
	}
	if len(lines) > 0 {
		tx.Steps = append(tx.Steps, b.restoreStep(family, lines))
	}
	return tx
}

func (b *IptablesBackend) restoreStep(f policy.Family, lines []string) Step {
	return Step{
		Command: b.restore(f),
		Args:    []string{"--noflush"},
		Input:   strings.Join(lines, "\n") + "\n",
	}
}

// Apply runs the transaction.
func (b *IptablesBackend) Apply(ctx context.Context, tx *Transaction) error {
	if tx.Empty() {
		return nil
	}
	b.logger.Debug("Applying iptables transaction", "kind", tx.Kind, "steps", len(tx.Steps))
	return applySteps(ctx, b.runner, tx)
}

// parseAllowRules counts "-A <chain> -s <addr>/<len> -j ACCEPT" lines of
// iptables -S output per address. Only host addresses are counted.
func parseAllowRules(out, chain string) map[policy.Address]int {
	rules := make(map[policy.Address]int)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "-A" || fields[1] != chain {
			continue
		}
		if !slices.Contains(fields, "ACCEPT") {
			continue
		}
		i := slices.Index(fields, "-s")
		if i < 0 || i+1 >= len(fields) {
			continue
		}
		if a, ok := hostAddr(fields[i+1]); ok {
			rules[a]++
		}
	}
	return rules
}

func hostAddr(s string) (netip.Addr, bool) {
	if !strings.Contains(s, "/") {
		a, err := policy.ParseAddress(s)
		return a, err == nil
	}
	p, err := netip.ParsePrefix(s)
	if err != nil || !p.IsSingleIP() {
		return netip.Addr{}, false
	}
	return p.Addr().Unmap(), true
}

// staleJumps returns the rule specs of INPUT rules that jump to the
// structural chain, without the leading "-A INPUT".
func staleJumps(out string, pol policy.Policy) []string {
	var specs []string
	suffix := " -j " + structuralChain(pol)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		spec, ok := strings.CutPrefix(line, "-A "+iptablesInput+" ")
		if !ok || !strings.HasSuffix(spec, suffix) {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}
