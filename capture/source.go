// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package capture

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/siemens/namon"
	log "github.com/sirupsen/logrus"
)

// ReadTimeout is the time a live source waits for packets before giving the
// capture a chance to check for being stopped.
const ReadTimeout = 250 * time.Millisecond

// Source is a packet source reading from a pcap handle.
type Source struct {
	handle *pcap.Handle
	name   string
}

var _ namon.PacketSource = (*Source)(nil)

// timeoutError signals that no packet arrived within the read timeout.
type timeoutError struct{}

func (timeoutError) Error() string { return "packet read timeout" }
func (timeoutError) Timeout() bool { return true }

// OpenLive opens a live capture on the network interface with the specified
// name, capturing at most snaplen octets per packet. Unless avoidProm is set,
// the interface is switched into promiscuous mode. An optional filter
// expression restricts the captured packets.
func OpenLive(iface string, snaplen uint32, avoidProm bool, filter string) (*Source, error) {
	handle, err := pcap.OpenLive(iface, int32(snaplen), !avoidProm, ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("cannot capture from %q: %w", iface, err)
	}
	return newSource(handle, iface, filter)
}

// OpenOffline opens the pcap or pcapng file at the specified path for
// replaying. An optional filter expression restricts the replayed packets.
func OpenOffline(path string, filter string) (*Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("cannot replay %q: %w", path, err)
	}
	return newSource(handle, path, filter)
}

func newSource(handle *pcap.Handle, name string, filter string) (*Source, error) {
	if filter != "" {
		log.Debugf("capture filter: %q", filter)
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("invalid capture filter %q: %w", filter, err)
		}
	}
	return &Source{handle: handle, name: name}, nil
}

// Name returns the name of the network interface or file captured from.
func (s *Source) Name() string {
	return s.name
}

// ReadPacketData returns the next packet captured. It returns io.EOF when an
// offline source has run dry.
func (s *Source) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, timeoutError{}
	}
	return data, ci, err
}

// LinkType returns the link-layer type of the captured packets.
func (s *Source) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

// Close the source, logging the final pcap statistics of live captures.
func (s *Source) Close() {
	if stats, err := s.handle.Stats(); err == nil {
		log.Debugf("pcap %q: %d packets received, %d dropped by kernel, %d dropped by interface",
			s.name, stats.PacketsReceived, stats.PacketsDropped, stats.PacketsIfDropped)
	}
	s.handle.Close()
}

// Interface describes a network interface available for capturing.
type Interface struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Addresses   []netip.Addr `json:"addresses" yaml:"addresses"`
	Loopback    bool         `json:"loopback" yaml:"loopback"`
	Up          bool         `json:"up" yaml:"up"`
}

// Interfaces returns the network interfaces available for capturing.
func Interfaces() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("cannot list capture interfaces: %w", err)
	}
	ifaces := make([]Interface, 0, len(devs))
	for _, dev := range devs {
		iface := Interface{
			Name:        dev.Name,
			Description: dev.Description,
			Addresses:   []netip.Addr{},
			Loopback:    dev.Flags&pcapIfLoopback != 0,
			Up:          dev.Flags&pcapIfUp != 0,
		}
		for _, addr := range dev.Addresses {
			if ip, ok := netip.AddrFromSlice(addr.IP); ok {
				iface.Addresses = append(iface.Addresses, ip.Unmap())
			}
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

// Interface flags as reported by pcap_findalldevs.
const (
	pcapIfLoopback = 0x00000001
	pcapIfUp       = 0x00000002
)

// LocalAddrs returns the addresses of all capture interfaces.
func LocalAddrs(ifaces []Interface) namon.LocalAddrs {
	var addrs []netip.Addr
	for _, iface := range ifaces {
		addrs = append(addrs, iface.Addresses...)
	}
	return namon.NewLocalAddrs(addrs...)
}
