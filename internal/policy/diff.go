package policy

import (
	"net/netip"
)

// Delta is the minimal change converging a current set to a desired set.
// Add and Remove are disjoint and in canonical order.
type Delta struct {
	Add    []netip.Addr
	Remove []netip.Addr
}

// Diff computes which addresses must be added to and removed from current so
// that it equals desired. It performs no I/O. Callers apply Add before Remove
// so the allowed set never shrinks below the intersection of both sets.
func Diff(desired, current AddressSet) Delta {
	var d Delta
	i, j := 0, 0
	for i < len(desired.addrs) && j < len(current.addrs) {
		switch c := desired.addrs[i].Compare(current.addrs[j]); {
		case c < 0:
			d.Add = append(d.Add, desired.addrs[i])
			i++
		case c > 0:
			d.Remove = append(d.Remove, current.addrs[j])
			j++
		default:
			i++
			j++
		}
	}
	d.Add = append(d.Add, desired.addrs[i:]...)
	d.Remove = append(d.Remove, current.addrs[j:]...)
	return d
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Family restricts the delta to one address family.
func (d Delta) Family(f Family) Delta {
	return Delta{
		Add:    filterFamily(d.Add, f),
		Remove: filterFamily(d.Remove, f),
	}
}

// Apply returns current with the delta applied.
func (d Delta) Apply(current AddressSet) AddressSet {
	return current.Union(NewAddressSet(d.Add...)).Minus(NewAddressSet(d.Remove...))
}

func filterFamily(addrs []netip.Addr, f Family) []netip.Addr {
	var out []netip.Addr
	for _, a := range addrs {
		if FamilyOf(a) == f {
			out = append(out, a)
		}
	}
	return out
}
