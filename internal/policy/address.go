package policy

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// Family is an IP address family.
type Family int

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 6
)

// Families lists the families in rendering order.
var Families = []Family{FamilyV4, FamilyV6}

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// Address is a validated, canonical IP address.
type Address = netip.Addr

// FamilyOf reports the family of a valid address.
func FamilyOf(a netip.Addr) Family {
	if a.Is4() {
		return FamilyV4
	}
	return FamilyV6
}

// ParseAddress strictly parses an IP literal and returns it in canonical form.
// IPv4-mapped IPv6 addresses are unmapped and zoned addresses are rejected,
// so two spellings of the same host always compare equal.
func ParseAddress(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, err
	}
	if a.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("address %q has a zone", s)
	}
	return a.Unmap(), nil
}

// AddressSet is an immutable, deduplicated set of addresses.
// Iteration order is numeric: all IPv4 addresses first, then IPv6, so
// 10.0.0.9 sorts before 10.0.0.10.
type AddressSet struct {
	addrs []netip.Addr
}

// NewAddressSet builds a set from arbitrary addresses. Invalid (zero) values are dropped.
func NewAddressSet(addrs ...netip.Addr) AddressSet {
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if !a.IsValid() {
			continue
		}
		out = append(out, a.Unmap().WithZone(""))
	}
	slices.SortFunc(out, netip.Addr.Compare)
	return AddressSet{addrs: slices.Compact(out)}
}

// ParseAddressSet parses candidate strings, silently dropping anything that
// is not a strict IP literal. The number of rejected candidates is returned
// for logging.
func ParseAddressSet(candidates []string) (AddressSet, int) {
	addrs := make([]netip.Addr, 0, len(candidates))
	rejected := 0
	for _, c := range candidates {
		a, err := ParseAddress(c)
		if err != nil {
			rejected++
			continue
		}
		addrs = append(addrs, a)
	}
	return NewAddressSet(addrs...), rejected
}

// MustParseAddressSet is ParseAddressSet for literals known to be valid.
func MustParseAddressSet(literals ...string) AddressSet {
	s, rejected := ParseAddressSet(literals)
	if rejected > 0 {
		panic(fmt.Sprintf("policy: %d invalid address literals in %v", rejected, literals))
	}
	return s
}

// Len returns the number of addresses.
func (s AddressSet) Len() int {
	return len(s.addrs)
}

// Empty reports whether the set has no addresses.
func (s AddressSet) Empty() bool {
	return len(s.addrs) == 0
}

// Contains reports whether a is in the set.
func (s AddressSet) Contains(a netip.Addr) bool {
	_, found := slices.BinarySearchFunc(s.addrs, a.Unmap(), netip.Addr.Compare)
	return found
}

// Addrs returns a copy of the addresses in canonical order.
func (s AddressSet) Addrs() []netip.Addr {
	return slices.Clone(s.addrs)
}

// Strings returns the canonical textual form of every address, in order.
func (s AddressSet) Strings() []string {
	out := make([]string, len(s.addrs))
	for i, a := range s.addrs {
		out[i] = a.String()
	}
	return out
}

// Family returns the subset belonging to f.
func (s AddressSet) Family(f Family) AddressSet {
	out := make([]netip.Addr, 0, len(s.addrs))
	for _, a := range s.addrs {
		if FamilyOf(a) == f {
			out = append(out, a)
		}
	}
	return AddressSet{addrs: out}
}

// Split partitions the set into its IPv4 and IPv6 halves.
func (s AddressSet) Split() (v4, v6 AddressSet) {
	return s.Family(FamilyV4), s.Family(FamilyV6)
}

// Union returns a new set holding the addresses of both sets.
func (s AddressSet) Union(o AddressSet) AddressSet {
	merged := make([]netip.Addr, 0, len(s.addrs)+len(o.addrs))
	merged = append(merged, s.addrs...)
	merged = append(merged, o.addrs...)
	return NewAddressSet(merged...)
}

// Minus returns the addresses of s that are not in o.
func (s AddressSet) Minus(o AddressSet) AddressSet {
	out := make([]netip.Addr, 0, len(s.addrs))
	for _, a := range s.addrs {
		if !o.Contains(a) {
			out = append(out, a)
		}
	}
	return AddressSet{addrs: out}
}

// Equal reports whether both sets hold exactly the same addresses.
func (s AddressSet) Equal(o AddressSet) bool {
	return slices.Equal(s.addrs, o.addrs)
}

func (s AddressSet) String() string {
	return "{" + strings.Join(s.Strings(), ", ") + "}"
}
