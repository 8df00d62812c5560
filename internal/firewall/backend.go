package firewall

import (
	"context"
	"fmt"

	"grimm.is/originguard/internal/logging"
	"grimm.is/originguard/internal/policy"
)

// Backend is a packet-filter tool the reconciler can query and mutate.
type Backend interface {
	Name() string
	// Query reads the allow-sets and whether the bootstrap rules exist.
	// Missing tables, sets or chains are reported as empty state.
	Query(ctx context.Context, pol policy.Policy) (State, error)
	PlanBootstrap(pol policy.Policy, state State) (*Transaction, error)
	// PlanAdd and PlanRemove receive the queried state so a backend whose
	// mutations are not idempotent can skip what is already in place.
	PlanAdd(pol policy.Policy, state State, family policy.Family, addrs []policy.Address) *Transaction
	PlanRemove(pol policy.Policy, state State, family policy.Family, addrs []policy.Address) *Transaction
	Apply(ctx context.Context, tx *Transaction) error
}

// State is the live firewall state relevant to the policy.
type State struct {
	V4           policy.AddressSet
	V6           policy.AddressSet
	Bootstrapped bool
	// Present records structural objects found by the query, keyed by a
	// backend specific name such as "chain gate" or "ip6 jump".
	Present map[string]bool
	// Rules counts allow rules per address for backends that can hold
	// duplicates. Nil when the allow-sets are true sets.
	Rules map[policy.Address]int
}

// Addresses returns the union of both allow-sets.
func (s State) Addresses() policy.AddressSet {
	return s.V4.Union(s.V6)
}

// Has reports whether the structural object key was found.
func (s State) Has(key string) bool {
	return s.Present[key]
}

func (s *State) mark(key string, present bool) {
	if s.Present == nil {
		s.Present = make(map[string]bool)
	}
	s.Present[key] = present
}

// Backend kinds.
const (
	KindNft      = "nft"
	KindIptables = "iptables"
)

// Binaries holds the paths of the external tools.
type Binaries struct {
	Nft              string
	Iptables         string
	Ip6tables        string
	IptablesRestore  string
	Ip6tablesRestore string
}

// DefaultBinaries resolves tools from PATH.
func DefaultBinaries() Binaries {
	return Binaries{
		Nft:              "nft",
		Iptables:         "iptables",
		Ip6tables:        "ip6tables",
		IptablesRestore:  "iptables-restore",
		Ip6tablesRestore: "ip6tables-restore",
	}
}

// Options configures New.
type Options struct {
	Kind     string // nft or iptables
	Query    string // cli or netlink, nft only
	Binaries Binaries
	Runner   CommandRunner
	Logger   *logging.Logger
}

// Query methods of the nft backend.
const (
	QueryCLI     = "cli"
	QueryNetlink = "netlink"
)

// New creates the backend selected by opts.
func New(opts Options) (Backend, error) {
	if opts.Runner == nil {
		opts.Runner = DefaultCommandRunner
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("firewall")
	}
	def := DefaultBinaries()
	if opts.Binaries.Nft == "" {
		opts.Binaries.Nft = def.Nft
	}
	if opts.Binaries.Iptables == "" {
		opts.Binaries.Iptables = def.Iptables
	}
	if opts.Binaries.Ip6tables == "" {
		opts.Binaries.Ip6tables = def.Ip6tables
	}
	if opts.Binaries.IptablesRestore == "" {
		opts.Binaries.IptablesRestore = def.IptablesRestore
	}
	if opts.Binaries.Ip6tablesRestore == "" {
		opts.Binaries.Ip6tablesRestore = def.Ip6tablesRestore
	}

	switch opts.Kind {
	case "", KindNft:
		b := NewNftBackend(opts.Binaries.Nft, opts.Runner, opts.Logger)
		switch opts.Query {
		case "", QueryCLI:
		case QueryNetlink:
			r, err := NewNetlinkReader()
			if err != nil {
				return nil, err
			}
			b.SetReader(r)
		default:
			return nil, fmt.Errorf("unknown nft query method %q", opts.Query)
		}
		return b, nil
	case KindIptables:
		return NewIptablesBackend(opts.Binaries, opts.Runner, opts.Logger), nil
	}
	return nil, fmt.Errorf("unknown backend %q", opts.Kind)
}
