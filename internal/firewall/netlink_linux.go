//go:build linux
// +build linux

package firewall

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/google/nftables"

	"grimm.is/originguard/internal/policy"
)

// NFTablesConn is the read-only subset of nftables.Conn used to query state.
type NFTablesConn interface {
	ListTables() ([]*nftables.Table, error)
	ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error)
	GetSets(t *nftables.Table) ([]*nftables.Set, error)
	GetSetElements(s *nftables.Set) ([]nftables.SetElement, error)
}

// RealNFTablesConn wraps the actual nftables.Conn.
type RealNFTablesConn struct {
	conn *nftables.Conn
}

// NewRealNFTablesConn creates a new RealNFTablesConn wrapping an nftables.Conn.
func NewRealNFTablesConn(conn *nftables.Conn) *RealNFTablesConn {
	return &RealNFTablesConn{conn: conn}
}

func (r *RealNFTablesConn) ListTables() ([]*nftables.Table, error) {
	return r.conn.ListTables()
}

func (r *RealNFTablesConn) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	return r.conn.ListChainsOfTableFamily(family)
}

func (r *RealNFTablesConn) GetSets(t *nftables.Table) ([]*nftables.Set, error) {
	return r.conn.GetSets(t)
}

func (r *RealNFTablesConn) GetSetElements(s *nftables.Set) ([]nftables.SetElement, error) {
	return r.conn.GetSetElements(s)
}

// NetlinkReader reads nftables state natively over netlink.
type NetlinkReader struct {
	conn NFTablesConn
}

// NewNetlinkReader opens a netlink connection to nftables.
func NewNetlinkReader() (*NetlinkReader, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open nftables netlink connection: %w", err)
	}
	return NewNetlinkReaderWithConn(NewRealNFTablesConn(conn)), nil
}

// NewNetlinkReaderWithConn creates a reader on an existing connection.
func NewNetlinkReaderWithConn(conn NFTablesConn) *NetlinkReader {
	return &NetlinkReader{conn: conn}
}

// ReadState finds the policy table and reads its sets and chains.
func (r *NetlinkReader) ReadState(ctx context.Context, pol policy.Policy) (State, error) {
	var st State
	if err := ctx.Err(); err != nil {
		return st, err
	}

	tables, err := r.conn.ListTables()
	if err != nil {
		return st, fmt.Errorf("failed to list tables: %w", err)
	}
	var table *nftables.Table
	for _, t := range tables {
		if t.Name == pol.Table && t.Family == nftables.TableFamilyINet {
			table = t
			break
		}
	}
	st.mark(tableKey, table != nil)
	if table == nil {
		return st, nil
	}

	sets, err := r.conn.GetSets(table)
	if err != nil {
		return st, fmt.Errorf("failed to get sets: %w", err)
	}
	for _, s := range sets {
		var family policy.Family
		switch s.Name {
		case pol.SetV4:
			family = policy.FamilyV4
		case pol.SetV6:
			family = policy.FamilyV6
		default:
			continue
		}
		st.mark(setKey(s.Name), true)

		elements, err := r.conn.GetSetElements(s)
		if err != nil {
			return st, fmt.Errorf("failed to get elements of %s: %w", s.Name, err)
		}
		addrs := elementAddrs(elements, family)
		if family == policy.FamilyV6 {
			st.V6 = addrs
		} else {
			st.V4 = addrs
		}
	}

	chains, err := r.conn.ListChainsOfTableFamily(nftables.TableFamilyINet)
	if err != nil {
		return st, fmt.Errorf("failed to list chains: %w", err)
	}
	for _, c := range chains {
		if c.Table == nil || c.Table.Name != pol.Table {
			continue
		}
		st.mark(chainKey(c.Name), true)
	}

	st.Bootstrapped = bootstrapped(st, pol)
	return st, nil
}

func elementAddrs(elements []nftables.SetElement, family policy.Family) policy.AddressSet {
	addrs := make([]netip.Addr, 0, len(elements))
	for _, elem := range elements {
		if elem.IntervalEnd {
			continue // Skip interval end markers
		}
		a, ok := netip.AddrFromSlice(elem.Key)
		if !ok {
			continue
		}
		addrs = append(addrs, a)
	}
	return policy.NewAddressSet(addrs...).Family(family)
}
