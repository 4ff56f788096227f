// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"fmt"

	"github.com/siemens/namon/cli"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
	"gopkg.in/yaml.v3"
)

// Provides the "namon options" command which lists the global CLI flags, as
// well as the effective configuration settings that a configuration file
// passed via "--config" can change.
var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List global command-line options and the effective configuration.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cmd.Usage(); err != nil {
			return err
		}
		settings, err := yaml.Marshal(Config())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nEffective configuration:\n%s", settings)
		return nil
	},
}

// optionsUsageTemplate lists only the global flags.
var optionsUsageTemplate = `Global options:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}
`

func init() {
	plugger.Group[cli.SetupCLI]().Register(OptionsSetupCLI, plugger.WithPlugin("options"))
}

// OptionsSetupCLI adds the "options" command.
func OptionsSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(optionsCmd)
	optionsCmd.SetUsageTemplate(optionsUsageTemplate)
}
