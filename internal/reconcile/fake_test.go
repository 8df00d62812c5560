package reconcile

import (
	"context"
	"errors"
	"net/netip"

	"grimm.is/originguard/internal/firewall"
	"grimm.is/originguard/internal/policy"
	"grimm.is/originguard/internal/state"
)

// fakeBackend keeps allow-sets in memory and records every call.
type fakeBackend struct {
	v4, v6       policy.AddressSet
	bootstrapped bool

	calls    []string
	queryErr error
	applyErr map[string]error // by transaction kind
	ctxErrs  []error          // ctx.Err() seen by each Apply
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Query(ctx context.Context, pol policy.Policy) (firewall.State, error) {
	b.calls = append(b.calls, "query")
	if b.queryErr != nil {
		return firewall.State{}, b.queryErr
	}
	return firewall.State{V4: b.v4, V6: b.v6, Bootstrapped: b.bootstrapped}, nil
}

func (b *fakeBackend) PlanBootstrap(pol policy.Policy, st firewall.State) (*firewall.Transaction, error) {
	b.calls = append(b.calls, "plan bootstrap")
	return &firewall.Transaction{
		Backend: "fake",
		Kind:    firewall.KindBootstrap,
		Steps:   []firewall.Step{{Command: "fake", Args: []string{"bootstrap", pol.Table}}},
	}, nil
}

func (b *fakeBackend) plan(kind string, f policy.Family, addrs []policy.Address) *firewall.Transaction {
	args := []string{kind, f.String()}
	for _, a := range addrs {
		args = append(args, a.String())
	}
	return &firewall.Transaction{
		Backend: "fake",
		Kind:    kind,
		Steps:   []firewall.Step{{Command: "fake", Args: args}},
	}
}

func (b *fakeBackend) PlanAdd(pol policy.Policy, _ firewall.State, f policy.Family, addrs []policy.Address) *firewall.Transaction {
	return b.plan(firewall.KindAdd, f, addrs)
}

func (b *fakeBackend) PlanRemove(pol policy.Policy, _ firewall.State, f policy.Family, addrs []policy.Address) *firewall.Transaction {
	return b.plan(firewall.KindRemove, f, addrs)
}

func (b *fakeBackend) Apply(ctx context.Context, tx *firewall.Transaction) error {
	b.calls = append(b.calls, "apply "+tx.Kind)
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	if err := b.applyErr[tx.Kind]; err != nil {
		return err
	}
	for _, s := range tx.Steps {
		if s.Args[0] == firewall.KindBootstrap {
			b.bootstrapped = true
			continue
		}
		var addrs []netip.Addr
		for _, a := range s.Args[2:] {
			addrs = append(addrs, netip.MustParseAddr(a))
		}
		set := policy.NewAddressSet(addrs...)
		target := &b.v4
		if s.Args[1] == policy.FamilyV6.String() {
			target = &b.v6
		}
		if s.Args[0] == firewall.KindAdd {
			*target = target.Union(set)
		} else {
			*target = target.Minus(set)
		}
	}
	return nil
}

// applied returns only the Apply calls.
func (b *fakeBackend) applied() []string {
	var out []string
	for _, c := range b.calls {
		if len(c) > 6 && c[:6] == "apply " {
			out = append(out, c[6:])
		}
	}
	return out
}

type fakeSource struct {
	v4, v6  policy.AddressSet
	err     error
	calls   int
	onFetch func()
}

func (s *fakeSource) Fetch(ctx context.Context) (policy.AddressSet, policy.AddressSet, error) {
	s.calls++
	if s.onFetch != nil {
		s.onFetch()
	}
	return s.v4, s.v6, s.err
}

type memSnapshot struct {
	set     policy.AddressSet
	saves   int
	saveErr error
	loadErr error
}

func (m *memSnapshot) Load() (policy.AddressSet, error) {
	return m.set, m.loadErr
}

func (m *memSnapshot) Save(set policy.AddressSet) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.set = set
	return nil
}

type memHistory struct {
	runs []state.Run
	err  error
}

func (h *memHistory) Record(ctx context.Context, r state.Run) error {
	if h.err != nil {
		return h.err
	}
	h.runs = append(h.runs, r)
	return nil
}

var errBoom = errors.New("boom")
