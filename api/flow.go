// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// This data model describes observed network connections ("flows") as seen
// from the local host. A flow is always oriented: its local endpoint belongs to
// this host, while the remote endpoint is the peer. Resolving a flow to its
// owning process only ever looks at the local endpoint, because that is what
// the operating system's connection tables index on.

package api

import (
	"fmt"
	"net/netip"
)

// IPVersion is the IP protocol version of a flow, either 4 or 6.
type IPVersion uint8

// The supported IP versions.
const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

// Protocol identifies the transport-layer protocol of a flow, using the IANA
// protocol numbers.
type Protocol uint8

// The supported transport-layer protocols.
const (
	TCP Protocol = 6
	UDP Protocol = 17
)

// String returns the protocol name in upper case, or its number if unknown.
func (p Protocol) String() string {
	switch p {
	case TCP:
		return "TCP"
	case UDP:
		return "UDP"
	}
	return fmt.Sprintf("proto(%d)", uint8(p))
}

// Flow describes one observed connection. Flows are values and never change
// once constructed; use NewFlow to create them.
type Flow struct {
	ipVersion IPVersion
	protocol  Protocol
	local     netip.AddrPort
	remote    netip.AddrPort
}

// FlowKey identifies a flow for lookup purposes: the remote endpoint is purely
// informational and thus not part of the key. FlowKey is comparable and can
// be used as a map key.
type FlowKey struct {
	IPVersion IPVersion
	Protocol  Protocol
	Local     netip.AddrPort
}

// NewFlow returns a new flow from the given IP version, transport protocol, as
// well as local and remote endpoints. IPv4 addresses in IPv4-mapped IPv6 form
// are unmapped for IPv4 flows, so that flows always carry 4 octet addresses for
// IPv4 and 16 octet addresses for IPv6.
func NewFlow(ipv IPVersion, proto Protocol, local, remote netip.AddrPort) Flow {
	if ipv == IPv4 {
		local = netip.AddrPortFrom(local.Addr().Unmap(), local.Port())
		remote = netip.AddrPortFrom(remote.Addr().Unmap(), remote.Port())
	}
	return Flow{
		ipVersion: ipv,
		protocol:  proto,
		local:     local,
		remote:    remote,
	}
}

// IPVersion returns the IP version of this flow.
func (f Flow) IPVersion() IPVersion { return f.ipVersion }

// Protocol returns the transport-layer protocol of this flow.
func (f Flow) Protocol() Protocol { return f.protocol }

// Local returns the local address and port of this flow.
func (f Flow) Local() netip.AddrPort { return f.local }

// Remote returns the remote address and port of this flow.
func (f Flow) Remote() netip.AddrPort { return f.remote }

// Key returns the lookup key of this flow.
func (f Flow) Key() FlowKey {
	return FlowKey{
		IPVersion: f.ipVersion,
		Protocol:  f.protocol,
		Local:     f.local,
	}
}

// String returns a textual representation in the form of
// "TCP/4 10.0.0.1:4000->192.0.2.1:443".
func (f Flow) String() string {
	return fmt.Sprintf("%s/%d %s->%s", f.protocol, f.ipVersion, f.local, f.remote)
}
