// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/siemens/namon/api"
	"github.com/siemens/namon/pcapng"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func tempDir() string {
	dir, err := os.MkdirTemp("", "namon-command-*")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(os.RemoveAll, dir)
	return dir
}

// udp4Packet returns an Ethernet frame carrying a UDP/IPv4 datagram.
func udp4Packet(src, dst string, sport, dport uint16) []byte {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(sport),
		DstPort: layers.UDPPort(dport),
	}
	Expect(udp.SetNetworkLayerForChecksum(ip)).To(Succeed())
	buf := gopacket.NewSerializeBuffer()
	Expect(gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip, udp, gopacket.Payload("hello"))).To(Succeed())
	return buf.Bytes()
}

// captureFile returns a capture file with the specified packet records.
func captureFile(recs ...api.PacketRecord) []byte {
	var buf bytes.Buffer
	pw, err := pcapng.NewWriter(&buf, &pcapng.SessionInfo{
		OS:          "TestOS",
		Application: "namon test",
		Interface:   "eth0",
		LinkType:    layers.LinkTypeEthernet,
		SnapLen:     65535,
	})
	Expect(err).NotTo(HaveOccurred())
	for idx := range recs {
		Expect(pw.WritePacket(&recs[idx])).To(Succeed())
	}
	return buf.Bytes()
}

// record returns a packet record for the specified packet data and owner.
func record(data []byte, ts time.Time, owner *api.ProcessIdentity) api.PacketRecord {
	rec := api.PacketRecord{
		CapturedLength: uint32(len(data)),
		OriginalLength: uint32(len(data)),
		Timestamp:      api.Microseconds(ts),
		Data:           data,
	}
	if owner != nil {
		rec.Owner = *owner
		rec.Attributed = true
	}
	return rec
}

// writeCaptureFile writes a capture file into a temporary directory and
// returns its path.
func writeCaptureFile(recs ...api.PacketRecord) string {
	path := filepath.Join(tempDir(), "capture.pcapng")
	Expect(os.WriteFile(path, captureFile(recs...), 0600)).To(Succeed())
	return path
}

// fakeSession answers identity queries from a map.
type fakeSession struct {
	openErr error
	apps    map[int]string
}

func (s *fakeSession) Open(context.Context) error { return s.openErr }

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) Identity(_ context.Context, pid int) (string, error) {
	app, ok := s.apps[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return app, nil
}
