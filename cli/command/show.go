// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Provides the "namon show" command for listing the packets in a capture
// file together with their process attribution.

package command

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/siemens/namon"
	"github.com/siemens/namon/api"
	"github.com/siemens/namon/cli"
	"github.com/siemens/namon/pcapng"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
	"github.com/thediveo/klo"
)

// Builtin custom-columns templates
const (
	// PacketListTemplate defines the custom columns when showing packets.
	PacketListTemplate = "NO:{.No},TIME:{.Time},LEN:{.Length},PID:{.Pid},APP:{.App}"
	// PacketWideListTemplate additionally shows the flows of the packets.
	PacketWideListTemplate = "NO:{.No},TIME:{.Time},LEN:{.Length},PROTO:{.Protocol},SOURCE:{.Source},DESTINATION:{.Destination},PID:{.Pid},APP:{.App}"
)

// Packet is a single packet from a capture file, with its process attribution.
type Packet struct {
	No          int    `json:"no"`
	Time        string `json:"time"`
	Length      uint32 `json:"length"`
	Protocol    string `json:"protocol,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	// Owning PID as rendered in the capture file, so "unknown" for
	// unresolvable owners and empty for packets without attribution.
	Pid string `json:"pid,omitempty"`
	App string `json:"app,omitempty"`
}

// showCmd defines the "namon show" command.
var showCmd = &cobra.Command{
	Use:   "show [flags] FILE",
	Short: "Show the packets of a capture file with their owning processes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prn, err := getPrinter(cmd, &klo.Specs{
			DefaultColumnSpec: PacketListTemplate,
			WideColumnSpec:    PacketWideListTemplate,
		})
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		packets, err := ReadPackets(f)
		if err != nil {
			return fmt.Errorf("cannot read capture file %q: %w", args[0], err)
		}
		return prn.Fprint(cmd.OutOrStdout(), packets)
	},
}

func init() {
	plugger.Group[cli.SetupCLI]().Register(ShowSetupCLI, plugger.WithPlugin("show"))
}

// ShowSetupCLI adds the “show” command.
func ShowSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(showCmd)
	addPrinterFlags(showCmd, "")
}

// ReadPackets reads all packets from the specified pcapng capture file,
// decoding their process attribution from their packet comments.
func ReadPackets(r io.Reader) ([]Packet, error) {
	linktypes := []layers.LinkType{}
	packets := []Packet{}
	sc := pcapng.NewScanner(r)
	for sc.Next() {
		b := sc.Block()
		switch b.Type {
		case pcapng.BlockSectionHeader:
			section, err := pcapng.DecodeSection(b)
			if err != nil {
				return nil, err
			}
			log.Debugf("section by %q on %q", section.Application, section.OS)
			linktypes = linktypes[:0]
		case pcapng.BlockInterfaceDescription:
			iface, err := pcapng.DecodeInterface(b)
			if err != nil {
				return nil, err
			}
			linktypes = append(linktypes, iface.LinkType)
		case pcapng.BlockEnhancedPacket:
			p, err := pcapng.DecodePacket(b)
			if err != nil {
				return nil, err
			}
			if int(p.InterfaceID) >= len(linktypes) {
				return nil, fmt.Errorf("packet references undefined interface %d", p.InterfaceID)
			}
			packet := Packet{
				No:     len(packets) + 1,
				Time:   time.UnixMicro(int64(p.Timestamp)).UTC().Format("15:04:05.000000"),
				Length: p.OriginalLength,
			}
			if flow, ok := namon.FlowOf(p.Data, linktypes[p.InterfaceID], nil); ok {
				packet.Protocol = flow.Protocol().String()
				packet.Source = flow.Local().String()
				packet.Destination = flow.Remote().String()
			}
			if owner, ok := api.ParseProcessIdentity(p.Comment); ok {
				packet.App = owner.AppName
				if owner.Pid == api.UnknownPid {
					packet.Pid = "unknown"
				} else {
					packet.Pid = fmt.Sprint(owner.Pid)
				}
			}
			packets = append(packets, packet)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return packets, nil
}
