package firewall

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"grimm.is/originguard/internal/logging"
	"grimm.is/originguard/internal/policy"
)

const nftFamily = "inet"

// StateReader reads the live nftables state for a policy.
type StateReader interface {
	ReadState(ctx context.Context, pol policy.Policy) (State, error)
}

// NftBackend manages the policy with nft scripts applied through nft -f.
type NftBackend struct {
	nft    string
	runner CommandRunner
	reader StateReader
	logger *logging.Logger
}

// NewNftBackend creates an nft backend that queries through the nft CLI.
func NewNftBackend(nftPath string, runner CommandRunner, logger *logging.Logger) *NftBackend {
	if logger == nil {
		logger = logging.WithComponent("firewall")
	}
	b := &NftBackend{nft: nftPath, runner: runner, logger: logger}
	b.reader = NewCLIReader(nftPath, runner)
	return b
}

// SetReader replaces the state reader.
func (b *NftBackend) SetReader(r StateReader) {
	b.reader = r
}

func (b *NftBackend) Name() string { return KindNft }

// Query reads the live state.
func (b *NftBackend) Query(ctx context.Context, pol policy.Policy) (State, error) {
	st, err := b.reader.ReadState(ctx, pol)
	if err != nil {
		return State{}, err
	}
	b.logger.Debug("Queried nftables", "table", pol.Table, "v4", st.V4.Len(), "v6", st.V6.Len(), "bootstrapped", st.Bootstrapped)
	return st, nil
}

// PlanBootstrap renders the table, both sets, one chain per hook and the
// chain rules as a single script. Chains of hooks no longer configured are
// removed.
func (b *NftBackend) PlanBootstrap(pol policy.Policy, state State) (*Transaction, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	bs := pol.Bootstrap()

	sb := NewScriptBuilder(bs.Table, nftFamily)
	sb.AddTableWithComment(BuildMetadataComment(pol))
	for _, s := range bs.Sets {
		sb.AddSet(s.Name, nftSetType(s.Family))
	}
	for _, c := range bs.Chains {
		sb.AddChain(c.Name, "filter", string(c.Hook), c.Priority, "accept")
		for _, r := range c.Rules {
			sb.AddRule(c.Name, nftRuleExpr(r))
		}
	}

	configured := make(map[string]bool)
	for _, c := range bs.Chains {
		configured[c.Name] = true
	}
	for _, h := range []policy.Hook{policy.HookInput, policy.HookPrerouting} {
		name := pol.ChainName(h)
		if !configured[name] && state.Has(chainKey(name)) {
			sb.FlushChain(name)
			sb.DeleteChain(name)
		}
	}

	return b.scriptTx(KindBootstrap, sb), nil
}

// PlanAdd adds addresses to the family's set in chunks of ChunkSize.
func (b *NftBackend) PlanAdd(pol policy.Policy, _ State, family policy.Family, addrs []policy.Address) *Transaction {
	sb := NewScriptBuilder(pol.Table, nftFamily)
	for _, c := range chunk(addrs, ChunkSize) {
		sb.AddSetElements(pol.SetName(family), addrStrings(c))
	}
	return b.scriptTx(KindAdd, sb)
}

// PlanRemove removes addresses from the family's set. Each chunk is added
// before it is deleted so the batch succeeds even if an element is already
// gone.
func (b *NftBackend) PlanRemove(pol policy.Policy, _ State, family policy.Family, addrs []policy.Address) *Transaction {
	sb := NewScriptBuilder(pol.Table, nftFamily)
	for _, c := range chunk(addrs, ChunkSize) {
		elems := addrStrings(c)
		sb.AddSetElements(pol.SetName(family), elems)
		sb.DeleteSetElements(pol.SetName(family), elems)
	}
	return b.scriptTx(KindRemove, sb)
}

// Apply runs the transaction.
func (b *NftBackend) Apply(ctx context.Context, tx *Transaction) error {
	if tx.Empty() {
		return nil
	}
	b.logger.Debug("Applying nft transaction", "kind", tx.Kind, "steps", len(tx.Steps))
	return applySteps(ctx, b.runner, tx)
}

// Validate checks the transaction scripts with nft -c without applying them.
func (b *NftBackend) Validate(ctx context.Context, tx *Transaction) error {
	if tx.Empty() {
		return nil
	}
	for _, s := range tx.Steps {
		args := append([]string{"-c"}, s.Args...)
		if err := b.runner.RunInput(ctx, s.Input, b.nft, args...); err != nil {
			return newBackendError(commandLine(b.nft, args), err)
		}
	}
	return nil
}

// Metadata reads the metadata comment of the managed table.
func (b *NftBackend) Metadata(ctx context.Context, pol policy.Policy) (*TableMetadata, error) {
	out, err := b.runner.Output(ctx, b.nft, "-j", "list", "table", nftFamily, pol.Table)
	if err != nil {
		if IsExitError(err) {
			return nil, nil
		}
		return nil, newBackendError(commandLine(b.nft, []string{"-j", "list", "table", nftFamily, pol.Table}), err)
	}
	comment, err := parseTableComment(out)
	if err != nil {
		return nil, err
	}
	return ParseMetadataComment(comment), nil
}

func (b *NftBackend) scriptTx(kind string, sb *ScriptBuilder) *Transaction {
	tx := &Transaction{Backend: KindNft, Kind: kind}
	if sb.Len() > 0 {
		tx.Steps = append(tx.Steps, Step{Command: b.nft, Args: []string{"-f", "-"}, Input: sb.Build()})
	}
	return tx
}

func nftSetType(f policy.Family) string {
	if f == policy.FamilyV6 {
		return "ipv6_addr"
	}
	return "ipv4_addr"
}

func nftRuleExpr(r policy.Rule) string {
	parts := []string{"tcp dport " + nftPorts(r.Ports)}
	if r.SourceSet != "" {
		proto := "ip"
		if r.Family == policy.FamilyV6 {
			proto = "ip6"
		}
		parts = append(parts, fmt.Sprintf("%s saddr @%s", proto, r.SourceSet))
	}
	parts = append(parts, "counter", string(r.Verdict))
	return strings.Join(parts, " ")
}

func nftPorts(ports []uint16) string {
	if len(ports) == 1 {
		return strconv.Itoa(int(ports[0]))
	}
	s := make([]string, len(ports))
	for i, p := range ports {
		s[i] = strconv.Itoa(int(p))
	}
	return "{ " + strings.Join(s, ", ") + " }"
}

func chainKey(name string) string { return "chain " + name }
func setKey(name string) string   { return "set " + name }

const tableKey = "table"
