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
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

// File names the pcap or pcapng file to replay.
var File string

func init() {
	plugger.Group[cli.SetupCLI]().Register(
		FileSetupCLI, plugger.WithPlugin("file"))
	plugger.Group[cli.BeforeCommand]().Register(
		FileBeforeCommand, plugger.WithPlugin("file"))
	plugger.Group[cli.NewSource]().Register(
		NewFileSource, plugger.WithPlugin("file"))
	plugger.Group[cli.CommandExamples]().Register(
		func() map[string]string {
			return map[string]string{
				"capture": `# Replay a pcap file, attributing its packets to the processes currently owning their flows.
namon capture -r traffic.pcap -w attributed.pcapng`,
				"show": `# Show the packets of a capture file together with their owning processes.
namon show attributed.pcapng -o wide`,
			}
		},
		plugger.WithPlugin("file"))
}

// FileSetupCLI registers the “--read” flag.
func FileSetupCLI(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&File, "read", "r", "",
		"Replay packets from a pcap or pcapng file instead of capturing from a network interface")
	command.Annotate(pf, "read", command.MutualFlagGroupAnnotation, command.SourceGroup)
}

// FileBeforeCommand overrides the configured capture source with the capture
// file specified on the command line, if any.
func FileBeforeCommand(cmd *cobra.Command, cfg *config.Config) error {
	if !cmd.Flags().Changed("read") {
		return nil
	}
	if File == "" {
		return errors.New("invalid empty --read file name")
	}
	cfg.Capture.File = File
	cfg.Capture.Interface = ""
	return nil
}

// NewFileSource returns a replay source for the configured capture file, if
// any.
func NewFileSource(cfg *config.Config) (namon.PacketSource, error) {
	if cfg.Capture.File == "" {
		return nil, nil
	}
	return capture.OpenOffline(cfg.Capture.File, cfg.Capture.Filter)
}
