// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"github.com/siemens/namon"
	"github.com/siemens/namon/cli"
	"github.com/siemens/namon/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
	"gopkg.in/yaml.v3"
)

// enable debug log output.
var enable bool

func init() {
	plugger.Group[cli.SetupCLI]().Register(DebugSetupCLI, plugger.WithPlugin("debug"))
	plugger.Group[cli.BeforeCommand]().Register(DebugBeforeCommand, plugger.WithPlugin("debug"))
}

// DebugSetupCLI registers the “--debug” CLI flag.
func DebugSetupCLI(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&enable, "debug", "d", false, "Enable debug output")
}

// DebugBeforeCommand switches to debug logging when requested via the
// “--debug” flag and then logs what is going to run with which settings.
func DebugBeforeCommand(cmd *cobra.Command, cfg *config.Config) error {
	if !enable {
		return nil
	}
	log.SetLevel(log.DebugLevel)
	log.Debugf("namon version %s on %s, running %q",
		namon.SemVersion, namon.OSDescription(), cmd.CommandPath())
	if settings, err := yaml.Marshal(cfg); err == nil {
		log.Debugf("effective configuration:\n%s", settings)
	}
	return nil
}
