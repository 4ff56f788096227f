// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package source

import (
	"errors"

	"github.com/siemens/namon"
	"github.com/siemens/namon/capture"
	"github.com/siemens/namon/cli"
	"github.com/siemens/namon/cli/command"
	"github.com/siemens/namon/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

// Interface names the network interface to capture from.
var Interface string

func init() {
	plugger.Group[cli.SetupCLI]().Register(
		LiveSetupCLI, plugger.WithPlugin("live"))
	plugger.Group[cli.BeforeCommand]().Register(
		LiveBeforeCommand, plugger.WithPlugin("live"))
	plugger.Group[cli.NewSource]().Register(
		NewLiveSource, plugger.WithPlugin("live"))
	plugger.Group[cli.CommandExamples]().Register(
		func() map[string]string {
			return map[string]string{
				"list": `# List the network interfaces available for capture.
namon list interfaces

# List the current TCP and UDP connections with their owning processes.
namon list connections -o wide`,
				"capture": `# Capture from eth0 and pipe the attributed packets into Wireshark.
namon capture -i eth0 | wireshark -k -i -

# Capture DNS traffic for a minute into a file.
namon capture -i eth0 -f "udp port 53" --duration 1m -w dns.pcapng`,
			}
		},
		plugger.WithPlugin("live"), plugger.WithPlacement("<"))
}

// LiveSetupCLI registers the “--interface” flag.
func LiveSetupCLI(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&Interface, "interface", "i", "",
		"Name of the network interface to capture from; defaults to the first up, non-loopback interface")
	command.Annotate(pf, "interface", command.MutualFlagGroupAnnotation, command.SourceGroup)
}

// LiveBeforeCommand overrides the configured capture source with the network
// interface specified on the command line, if any.
func LiveBeforeCommand(cmd *cobra.Command, cfg *config.Config) error {
	if !cmd.Flags().Changed("interface") {
		return nil
	}
	if Interface == "" {
		return errors.New("invalid empty --interface name")
	}
	cfg.Capture.Interface = Interface
	cfg.Capture.File = ""
	return nil
}

// NewLiveSource returns a live capture source for the configured network
// interface, unless a capture file has been configured. If neither has been
// configured, it captures from the first up, non-loopback interface and
// updates the configuration accordingly.
func NewLiveSource(cfg *config.Config) (namon.PacketSource, error) {
	if cfg.Capture.File != "" {
		return nil, nil
	}
	if cfg.Capture.Interface == "" {
		iface, err := defaultInterface()
		if err != nil {
			return nil, err
		}
		log.Infof("no interface specified, capturing from %q", iface)
		cfg.Capture.Interface = iface
	}
	return capture.OpenLive(cfg.Capture.Interface,
		cfg.Capture.SnapLen, cfg.Capture.NoPromiscuous, cfg.Capture.Filter)
}

// defaultInterface returns the name of the first network interface that is up
// and not a loopback interface.
func defaultInterface() (string, error) {
	ifaces, err := capture.Interfaces()
	if err != nil {
		return "", err
	}
	if name := firstCapturable(ifaces); name != "" {
		return name, nil
	}
	return "", errors.New("no network interface available for capture")
}

func firstCapturable(ifaces []capture.Interface) string {
	for _, iface := range ifaces {
		if iface.Up && !iface.Loopback && len(iface.Addresses) > 0 {
			return iface.Name
		}
	}
	return ""
}
