// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package capture

import (
	"io"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func udp4Packet(sport, dport uint16) []byte {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1).To4(),
		DstIP:    net.IPv4(10, 0, 0, 2).To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	Expect(udp.SetNetworkLayerForChecksum(ip)).To(Succeed())
	buf := gopacket.NewSerializeBuffer()
	Expect(gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip, udp, gopacket.Payload("hello"))).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("pcap sources", func() {

	var path string
	ts := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "namon-capture-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
		path = filepath.Join(dir, "test.pcap")

		f, err := os.Create(path)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		w := pcapgo.NewWriter(f)
		Expect(w.WriteFileHeader(65535, layers.LinkTypeEthernet)).To(Succeed())
		for idx, port := range []uint16{53, 123, 53} {
			data := udp4Packet(40000, port)
			Expect(w.WritePacket(gopacket.CaptureInfo{
				Timestamp:     ts.Add(time.Duration(idx) * time.Second),
				CaptureLength: len(data),
				Length:        len(data),
			}, data)).To(Succeed())
		}
	})

	It("replays capture files", func() {
		src, err := OpenOffline(path, "")
		Expect(err).NotTo(HaveOccurred())
		defer src.Close()
		Expect(src.Name()).To(Equal(path))
		Expect(src.LinkType()).To(Equal(layers.LinkTypeEthernet))
		for idx := 0; idx < 3; idx++ {
			data, ci, err := src.ReadPacketData()
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveLen(ci.CaptureLength))
			Expect(ci.Timestamp.Equal(ts.Add(time.Duration(idx) * time.Second))).To(BeTrue())
		}
		_, _, err = src.ReadPacketData()
		Expect(err).To(Equal(io.EOF))
	})

	It("filters replayed packets", func() {
		src, err := OpenOffline(path, "udp port 53")
		Expect(err).NotTo(HaveOccurred())
		defer src.Close()
		n := 0
		for {
			_, _, err := src.ReadPacketData()
			if err != nil {
				Expect(err).To(Equal(io.EOF))
				break
			}
			n++
		}
		Expect(n).To(Equal(2))
	})

	It("rejects invalid filters and files", func() {
		_, err := OpenOffline(path, "udp port banana")
		Expect(err).To(MatchError(ContainSubstring("invalid capture filter")))
		_, err = OpenOffline(path+".missing", "")
		Expect(err).To(MatchError(ContainSubstring("cannot replay")))
	})

	It("collects local addresses of interfaces", func() {
		la := LocalAddrs([]Interface{
			{Name: "lo", Addresses: []netip.Addr{netip.MustParseAddr("127.0.0.1")}},
			{Name: "eth0", Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("fe80::1")}},
		})
		Expect(la).To(HaveLen(3))
		Expect(la.Contains(netip.MustParseAddr("10.0.0.1"))).To(BeTrue())
	})

	It("signals read timeouts as temporary", func() {
		var err error = timeoutError{}
		to, ok := err.(interface{ Timeout() bool })
		Expect(ok).To(BeTrue())
		Expect(to.Timeout()).To(BeTrue())
	})

})
