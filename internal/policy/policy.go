package policy

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// IPv6Mode selects how IPv6 traffic to the protected ports is treated.
type IPv6Mode string

const (
	// IPv6Block drops all IPv6 traffic to the protected ports.
	IPv6Block IPv6Mode = "block"
	// IPv6Allow admits IPv6 edge addresses like their IPv4 counterparts.
	IPv6Allow IPv6Mode = "allow"
)

// ParseIPv6Mode parses "allow" or "block".
func ParseIPv6Mode(s string) (IPv6Mode, error) {
	switch m := IPv6Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case IPv6Allow, IPv6Block:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (want allow or block)", ErrInvalidIPv6Mode, s)
}

// Hook is the netfilter hook a chain attaches to.
type Hook string

const (
	HookInput      Hook = "input"
	HookPrerouting Hook = "prerouting"
)

// ParseHook parses a hook name.
func ParseHook(s string) (Hook, error) {
	switch h := Hook(strings.ToLower(strings.TrimSpace(s))); h {
	case HookInput, HookPrerouting:
		return h, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidHook, s)
}

// Priority returns the chain priority used for the hook. Both run ahead of
// the filter priority; prerouting runs before DNAT so published container
// ports are covered too.
func (h Hook) Priority() int {
	if h == HookPrerouting {
		return -200
	}
	return -150
}

var (
	ErrNoPorts         = errors.New("at least one port is required")
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidIPv6Mode = errors.New("invalid ipv6 mode")
	ErrInvalidHook     = errors.New("invalid hook")
	ErrNoHooks         = errors.New("at least one hook is required")
	ErrInvalidName     = errors.New("invalid identifier")
)

// MaxNameLen is the longest identifier accepted by both backends.
const MaxNameLen = 28

var validNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Default identifiers.
const (
	DefaultTable = "bop"
	DefaultChain = "gate"
	DefaultSetV4 = "edge_v4"
	DefaultSetV6 = "edge_v6"
)

// Policy is the allowlist policy enforced on the host.
type Policy struct {
	Table string
	Chain string
	SetV4 string
	SetV6 string
	Ports []uint16
	IPv6  IPv6Mode
	Hooks []Hook
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		Table: DefaultTable,
		Chain: DefaultChain,
		SetV4: DefaultSetV4,
		SetV6: DefaultSetV6,
		Ports: []uint16{80, 443},
		IPv6:  IPv6Block,
		Hooks: []Hook{HookInput, HookPrerouting},
	}
}

// Normalize returns a copy with ports and hooks sorted and deduplicated.
func (p Policy) Normalize() Policy {
	p.Ports = slices.Compact(slices.Sorted(slices.Values(p.Ports)))
	hooks := make([]Hook, 0, len(p.Hooks))
	for _, h := range []Hook{HookInput, HookPrerouting} {
		if slices.Contains(p.Hooks, h) {
			hooks = append(hooks, h)
		}
	}
	p.Hooks = hooks
	return p
}

// Validate checks every invariant of the policy.
func (p Policy) Validate() error {
	for _, n := range []struct{ field, value string }{
		{"table", p.Table},
		{"chain", p.Chain},
		{"set_v4", p.SetV4},
		{"set_v6", p.SetV6},
	} {
		if err := ValidateName(n.value); err != nil {
			return fmt.Errorf("%s: %w", n.field, err)
		}
	}
	if p.SetV4 == p.SetV6 {
		return fmt.Errorf("%w: set names must differ", ErrInvalidName)
	}
	if len(p.Ports) == 0 {
		return ErrNoPorts
	}
	for _, port := range p.Ports {
		if port == 0 {
			return fmt.Errorf("%w: 0", ErrInvalidPort)
		}
	}
	if _, err := ParseIPv6Mode(string(p.IPv6)); err != nil {
		return err
	}
	if len(p.Hooks) == 0 {
		return ErrNoHooks
	}
	for _, h := range p.Hooks {
		if _, err := ParseHook(string(h)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateName checks that name is usable as a table, chain or set identifier.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %q longer than %d characters", ErrInvalidName, name, MaxNameLen)
	}
	if !validNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ParsePorts parses a comma-separated port list such as "80,443".
func ParsePorts(s string) ([]uint16, error) {
	var ports []uint16
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPort, field)
		}
		ports = append(ports, uint16(n))
	}
	if len(ports) == 0 {
		return nil, ErrNoPorts
	}
	return slices.Compact(slices.Sorted(slices.Values(ports))), nil
}

// PortList renders the ports as "80,443".
func (p Policy) PortList() string {
	parts := make([]string, len(p.Ports))
	for i, port := range p.Ports {
		parts[i] = strconv.Itoa(int(port))
	}
	return strings.Join(parts, ",")
}

// SetName returns the allow-set name for a family.
func (p Policy) SetName(f Family) string {
	if f == FamilyV6 {
		return p.SetV6
	}
	return p.SetV4
}

// ChainName returns the chain attached to hook h.
func (p Policy) ChainName(h Hook) string {
	if h == HookPrerouting {
		return p.Chain + "_pre"
	}
	return p.Chain
}

// AllowsIPv6 reports whether IPv6 edge addresses are admitted.
func (p Policy) AllowsIPv6() bool {
	return p.IPv6 == IPv6Allow
}

// Desired returns the allow-set contents the firewall should converge to.
// In block mode the IPv6 set is kept empty.
func (p Policy) Desired(v4, v6 AddressSet) AddressSet {
	v4 = v4.Family(FamilyV4)
	if !p.AllowsIPv6() {
		return v4
	}
	return v4.Union(v6.Family(FamilyV6))
}
