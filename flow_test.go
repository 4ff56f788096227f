// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

import (
	"net/netip"

	"github.com/google/gopacket/layers"
	"github.com/siemens/namon/api"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("flows", func() {

	local := NewLocalAddrs(
		netip.MustParseAddr("::ffff:10.0.0.1"),
		netip.MustParseAddr("2001:db8::1"))

	It("knows local addresses", func() {
		Expect(local.Contains(netip.MustParseAddr("10.0.0.1"))).To(BeTrue())
		Expect(local.Contains(netip.MustParseAddr("::ffff:10.0.0.1"))).To(BeTrue())
		Expect(local.Contains(netip.MustParseAddr("10.0.0.2"))).To(BeFalse())
		Expect(LocalAddrs(nil).Contains(netip.MustParseAddr("10.0.0.1"))).To(BeFalse())
	})

	It("finds the host's addresses", func() {
		addrs, err := HostAddrs()
		Expect(err).NotTo(HaveOccurred())
		Expect(addrs.Contains(netip.MustParseAddr("127.0.0.1"))).To(BeTrue())
	})

	It("takes outgoing packets from the local source", func() {
		flow, ok := FlowOf(tcp4Packet("10.0.0.1", "192.0.2.1", 4001, 443, []byte("GET /")),
			layers.LinkTypeEthernet, local)
		Expect(ok).To(BeTrue())
		Expect(flow.IPVersion()).To(Equal(api.IPv4))
		Expect(flow.Protocol()).To(Equal(api.TCP))
		Expect(flow.Local()).To(Equal(netip.MustParseAddrPort("10.0.0.1:4001")))
		Expect(flow.Remote()).To(Equal(netip.MustParseAddrPort("192.0.2.1:443")))
	})

	It("turns incoming packets around", func() {
		flow, ok := FlowOf(tcp4Packet("192.0.2.1", "10.0.0.1", 443, 4001, nil),
			layers.LinkTypeEthernet, local)
		Expect(ok).To(BeTrue())
		Expect(flow.Key()).To(Equal(api.FlowKey{
			IPVersion: api.IPv4,
			Protocol:  api.TCP,
			Local:     netip.MustParseAddrPort("10.0.0.1:4001"),
		}))
		Expect(flow.Remote()).To(Equal(netip.MustParseAddrPort("192.0.2.1:443")))
	})

	It("defaults to the source without local addresses", func() {
		flow, ok := FlowOf(tcp4Packet("192.0.2.1", "10.0.0.1", 443, 4001, nil),
			layers.LinkTypeEthernet, nil)
		Expect(ok).To(BeTrue())
		Expect(flow.Local()).To(Equal(netip.MustParseAddrPort("192.0.2.1:443")))
	})

	It("decodes UDP over IPv6", func() {
		flow, ok := FlowOf(udp6Packet("2001:db8::2", "2001:db8::1", 53, 40000, []byte{1, 2, 3}),
			layers.LinkTypeEthernet, local)
		Expect(ok).To(BeTrue())
		Expect(flow.IPVersion()).To(Equal(api.IPv6))
		Expect(flow.Protocol()).To(Equal(api.UDP))
		Expect(flow.Local()).To(Equal(netip.MustParseAddrPort("[2001:db8::1]:40000")))
	})

	It("rejects non-flow packets", func() {
		_, ok := FlowOf(arpPacket(), layers.LinkTypeEthernet, local)
		Expect(ok).To(BeFalse())
		_, ok = FlowOf([]byte{0xde, 0xad}, layers.LinkTypeEthernet, local)
		Expect(ok).To(BeFalse())
	})

})
