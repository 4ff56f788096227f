// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package resolver

import (
	"fmt"
	"net/netip"

	"github.com/siemens/namon/api"
)

// Kind selects one of the four shapes of OS connection tables, determined by
// IP version and transport protocol.
type Kind uint8

// The supported connection table kinds.
const (
	TCP4 Kind = iota
	UDP4
	TCP6
	UDP6
)

// String returns the name of a table kind, such as "tcp4".
func (k Kind) String() string {
	switch k {
	case TCP4:
		return "tcp4"
	case UDP4:
		return "udp4"
	case TCP6:
		return "tcp6"
	case UDP6:
		return "udp6"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds lists all supported connection table kinds.
var Kinds = []Kind{TCP4, UDP4, TCP6, UDP6}

// KindOf returns the connection table kind for the specified IP version and
// transport protocol. It returns an error wrapping ErrUnsupportedFlow for any
// other combination.
func KindOf(ipv api.IPVersion, proto api.Protocol) (Kind, error) {
	switch {
	case ipv == api.IPv4 && proto == api.TCP:
		return TCP4, nil
	case ipv == api.IPv4 && proto == api.UDP:
		return UDP4, nil
	case ipv == api.IPv6 && proto == api.TCP:
		return TCP6, nil
	case ipv == api.IPv6 && proto == api.UDP:
		return UDP6, nil
	}
	return 0, fmt.Errorf("%w: IPv%d %s", ErrUnsupportedFlow, ipv, proto)
}

// AddrLen returns the width in octets of the addresses in this kind of table.
func (k Kind) AddrLen() int {
	if k == TCP6 || k == UDP6 {
		return 16
	}
	return 4
}

// Row is a single entry of a connection table, with the local and remote
// endpoints of a socket and the ID of the process owning the socket.
type Row struct {
	Local  netip.AddrPort `json:"local"`
	Remote netip.AddrPort `json:"remote"`
	Pid    int            `json:"pid"`
	// Inode number of the socket, where the platform identifies sockets by
	// inodes; 0 otherwise.
	Inode uint64 `json:"-"`
}

// Table is a point-in-time snapshot of a connection table.
type Table []Row

// TableSource fetches snapshots of the OS connection tables.
type TableSource interface {
	// Table returns a fresh snapshot of the connection table of the specified
	// kind. Any OS resources needed to fetch the snapshot must have been
	// released when Table returns.
	Table(kind Kind) (Table, error)
}

// TableFunc adapts an ordinary function into a TableSource.
type TableFunc func(kind Kind) (Table, error)

// Table returns f(kind).
func (f TableFunc) Table(kind Kind) (Table, error) { return f(kind) }

// OwnerSource is implemented by table sources that can tell the owner of a
// single local endpoint without attributing all rows of a table to their
// owning processes.
type OwnerSource interface {
	// Owner returns the PID of the process owning the socket bound to the
	// specified local endpoint in the connection table of the specified kind,
	// and false if no socket matches (see also Table.Match).
	Owner(kind Kind, local netip.AddrPort) (int, bool, error)
}

// Match returns the owning PID of the first row whose local endpoint exactly
// matches the specified local address and port. If there is no exact match,
// then the first row bound to the unspecified address with the same port
// matches instead, covering sockets listening on all addresses. Match returns
// false if no row matches.
func (t Table) Match(local netip.AddrPort) (int, bool) {
	row := t.Lookup(local)
	if row == nil {
		return 0, false
	}
	return row.Pid, true
}

// Lookup returns the row matching the specified local endpoint in the same
// way as Match does, or nil.
func (t Table) Lookup(local netip.AddrPort) *Row {
	addr := local.Addr()
	port := local.Port()
	wildcard := -1
	for idx := range t {
		row := &t[idx]
		if row.Local.Port() != port {
			continue
		}
		rowaddr := row.Local.Addr()
		if rowaddr == addr {
			return row
		}
		if wildcard < 0 && rowaddr.IsUnspecified() && rowaddr.BitLen() == addr.BitLen() {
			wildcard = idx
		}
	}
	if wildcard >= 0 {
		return &t[wildcard]
	}
	return nil
}

// addrFrom returns the netip address for the specified octets, which must be
// either 4 or 16 octets long, according to the table kind. IPv4-mapped IPv6
// addresses are unmapped for IPv4 tables.
func addrFrom(kind Kind, b []byte) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		return netip.Addr{}, false
	}
	if kind.AddrLen() == 4 {
		addr = addr.Unmap()
		if !addr.Is4() {
			return netip.Addr{}, false
		}
	} else if addr.Is4() {
		addr = netip.AddrFrom16(addr.As16())
	}
	return addr, true
}
