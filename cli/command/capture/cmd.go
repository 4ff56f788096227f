// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package capture

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/siemens/namon"
	"github.com/siemens/namon/cli"
	"github.com/siemens/namon/cli/command"
	"github.com/siemens/namon/config"
	"github.com/siemens/namon/resolver"
	"github.com/thediveo/go-plugger/v3"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const AvoidPromModeArg = "avoid-promiscuous"

// captureCmd defines the "namon capture" command.
var captureCmd = &cobra.Command{
	Use:   "capture [flags]",
	Short: "Capture network traffic attributed to local processes.",
	Args:  cobra.NoArgs,
	RunE:  capture,
}

func init() {
	plugger.Group[cli.SetupCLI]().Register(CaptureSetupCLI, plugger.WithPlugin("capture"))
}

// CaptureSetupCLI adds the "capture" command.
func CaptureSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(captureCmd)
	fs := captureCmd.Flags()
	fs.StringP("filter", "f", "",
		"Set the capture filter expression.")
	fs.BoolP(AvoidPromModeArg, "p", false,
		"Don't put the network interface into promiscuous mode")
	fs.StringP("write", "w", "-",
		"Write captured network packets to file. Use \"-\" for stdout.")
	fs.Uint32P("snaplen", "s", namon.DefaultSnapLen,
		"Maximum number of octets captured per packet.")
	fs.Int("buffer", namon.DefaultBufferCapacity,
		"Number of packets buffered between capturing and writing.")
	fs.Int("cache-size", namon.DefaultCacheSize,
		"Number of flows and processes each to cache owner information for.")
	fs.Duration("resolve-timeout", namon.DefaultResolveTimeout,
		"Maximum time to wait for a process identity before writing a packet without it.")
	fs.Duration("duration", 0,
		"Stop capturing after this duration; zero captures until interrupted.")
}

// ApplyFlags overlays the capture flags explicitly set on the command line
// onto the specified configuration.
func ApplyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("filter") {
		cfg.Capture.Filter, _ = fs.GetString("filter")
	}
	if fs.Changed(AvoidPromModeArg) {
		cfg.Capture.NoPromiscuous, _ = fs.GetBool(AvoidPromModeArg)
	}
	if fs.Changed("write") {
		cfg.Output.Path, _ = fs.GetString("write")
	}
	if fs.Changed("snaplen") {
		cfg.Capture.SnapLen, _ = fs.GetUint32("snaplen")
	}
	if fs.Changed("buffer") {
		cfg.Capture.BufferCapacity, _ = fs.GetInt("buffer")
	}
	if fs.Changed("cache-size") {
		cfg.Resolution.CacheSize, _ = fs.GetInt("cache-size")
	}
	if fs.Changed("resolve-timeout") {
		cfg.Resolution.Timeout, _ = fs.GetDuration("resolve-timeout")
	}
}

// Capture network traffic from the configured packet source into the
// configured capture file, until the source runs dry, the capture duration
// has passed, or this CLI tool gets SIGINT'ed or SIGTERM'ed.
func capture(cmd *cobra.Command, _ []string) (err error) {
	cfg := command.Config()
	ApplyFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	src, err := command.NewSource(cfg)
	if err != nil {
		return err
	}
	// Open a new output file to dump the captured network packets into, or use
	// stdout, if "-" was specified.
	var out io.Writer = os.Stdout
	if wname := cfg.Output.Path; wname != "" && wname != "-" {
		f, ferr := os.OpenFile(wname, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
		if ferr != nil {
			src.Close()
			return fmt.Errorf("cannot create packet capture file: %s", ferr.Error())
		}
		defer closeOutput(f, &err)
		out = f
	}
	opts := cfg.CaptureOptions()
	if local, err := namon.HostAddrs(); err == nil {
		opts.LocalAddrs = local
	} else {
		log.Warnf("cannot determine local addresses: %s", err.Error())
	}
	cs, err := namon.StartCapture(out, src, resolver.New(), opts)
	if err != nil {
		return fmt.Errorf("cannot start capture: %s", err.Error())
	}
	finished := make(chan struct{})
	go func() {
		if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
			cs.StopAfter(d)
		}
		_ = cs.Wait()
		close(finished)
	}()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	// ...zzzzzzzzzz...
	select {
	case <-sigs:
		// Stop the packet capture in an orderly manner, so that we won't write
		// half-broken captures, but instead get a clean end. Stopping a
		// capture will block until the capture has orderly terminated.
		log.Debugf("stopping packet capture from %q...", opts.Interface)
		cs.Stop()
	case <-finished:
	}
	stats := cs.Stats()
	log.Debugf("packet capture from %q finished: %+v", opts.Interface, stats)
	return cs.Wait()
}

// closeOutput closes the capture file, reporting a failure to close in err
// unless err already reports an earlier failure. Closing might be the first
// time the file system tells about failing writes.
func closeOutput(f io.Closer, err *error) {
	if cerr := f.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("cannot close packet capture file: %s", cerr.Error())
	}
}
