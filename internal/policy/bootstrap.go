package policy

// Verdict is the action of a rule.
type Verdict string

const (
	Accept Verdict = "accept"
	Drop   Verdict = "drop"
)

// Rule matches TCP traffic to Ports, optionally restricted to sources in an
// allow-set of one family.
type Rule struct {
	Ports     []uint16
	Family    Family // zero when the rule matches both families
	SourceSet string // empty when the rule has no source match
	Verdict   Verdict
}

// Chain is a base chain attached to a hook. Its default policy is accept;
// only traffic to the protected ports is judged.
type Chain struct {
	Name     string
	Hook     Hook
	Priority int
	Rules    []Rule
}

// Set is a named allow-set.
type Set struct {
	Name   string
	Family Family
}

// Bootstrap is the structural part of the policy, independent of the
// allow-set contents. It is reapplied on every run.
type Bootstrap struct {
	Table  string
	Sets   []Set
	Chains []Chain
}

// Bootstrap renders the declarative structure for p. Both sets are always
// declared so switching the IPv6 mode never requires a set to appear or
// vanish; only the IPv6 accept rule depends on the mode.
func (p Policy) Bootstrap() Bootstrap {
	p = p.Normalize()
	b := Bootstrap{
		Table: p.Table,
		Sets: []Set{
			{Name: p.SetV4, Family: FamilyV4},
			{Name: p.SetV6, Family: FamilyV6},
		},
	}
	for _, h := range p.Hooks {
		b.Chains = append(b.Chains, Chain{
			Name:     p.ChainName(h),
			Hook:     h,
			Priority: h.Priority(),
			Rules:    p.rules(),
		})
	}
	return b
}

func (p Policy) rules() []Rule {
	rules := []Rule{{Ports: p.Ports, Family: FamilyV4, SourceSet: p.SetV4, Verdict: Accept}}
	if p.AllowsIPv6() {
		rules = append(rules, Rule{Ports: p.Ports, Family: FamilyV6, SourceSet: p.SetV6, Verdict: Accept})
	}
	return append(rules, Rule{Ports: p.Ports, Verdict: Drop})
}
