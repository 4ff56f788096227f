// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

import (
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/siemens/namon/api"
)

// LocalAddrs is a set of IP addresses belonging to the local host. IPv4
// addresses are always stored unmapped.
type LocalAddrs map[netip.Addr]struct{}

// NewLocalAddrs returns a set of the specified local addresses.
func NewLocalAddrs(addrs ...netip.Addr) LocalAddrs {
	la := make(LocalAddrs, len(addrs))
	for _, addr := range addrs {
		la[addr.Unmap()] = struct{}{}
	}
	return la
}

// HostAddrs returns the IP addresses of all network interfaces of the host.
func HostAddrs() (LocalAddrs, error) {
	ifaddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	la := LocalAddrs{}
	for _, ifaddr := range ifaddrs {
		prefix, err := netip.ParsePrefix(ifaddr.String())
		if err != nil {
			continue
		}
		la[prefix.Addr().Unmap()] = struct{}{}
	}
	return la, nil
}

// Contains returns true if addr is a local address.
func (la LocalAddrs) Contains(addr netip.Addr) bool {
	_, ok := la[addr.Unmap()]
	return ok
}

// FlowOf decodes the specified packet data of the given link type and returns
// the TCP or UDP flow the packet belongs to. It returns false for packets
// other than TCP and UDP over IPv4 and IPv6, and for fragments without
// transport header.
//
// The local side of the flow is the packet's source if the source address is
// local, otherwise the destination if the destination address is local. If
// neither address is local (or there are no local addresses known), the source
// counts as local.
func FlowOf(data []byte, linktype layers.LinkType, local LocalAddrs) (api.Flow, bool) {
	packet := gopacket.NewPacket(data, linktype, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	var ipv api.IPVersion
	var src, dst netip.Addr
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		ipv = api.IPv4
		src, _ = netip.AddrFromSlice(ip.SrcIP.To4())
		dst, _ = netip.AddrFromSlice(ip.DstIP.To4())
	case *layers.IPv6:
		ipv = api.IPv6
		src, _ = netip.AddrFromSlice(ip.SrcIP.To16())
		dst, _ = netip.AddrFromSlice(ip.DstIP.To16())
	default:
		return api.Flow{}, false
	}
	if !src.IsValid() || !dst.IsValid() {
		return api.Flow{}, false
	}

	var proto api.Protocol
	var sport, dport uint16
	switch tp := packet.TransportLayer().(type) {
	case *layers.TCP:
		proto = api.TCP
		sport, dport = uint16(tp.SrcPort), uint16(tp.DstPort)
	case *layers.UDP:
		proto = api.UDP
		sport, dport = uint16(tp.SrcPort), uint16(tp.DstPort)
	default:
		return api.Flow{}, false
	}

	srcap := netip.AddrPortFrom(src, sport)
	dstap := netip.AddrPortFrom(dst, dport)
	if !local.Contains(src) && local.Contains(dst) {
		return api.NewFlow(ipv, proto, dstap, srcap), true
	}
	return api.NewFlow(ipv, proto, srcap, dstap), true
}
