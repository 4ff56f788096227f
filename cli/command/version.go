// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"fmt"
	"strings"

	"github.com/siemens/namon"
	"github.com/siemens/namon/cli"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

// Provides the “namon version” command. The semantic version is the one
// defined for the main namon package, so there's no separate version number
// for the namon CLI command. In addition, the version command lists the
// included packet sources.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version (with integrated packet sources).",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		semver := namon.SemVersion
		for _, pluginsemver := range plugger.Group[cli.SemVer]().Symbols() {
			semver = pluginsemver()
			break
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (packet sources: %s)\n",
			cmd.Parent().Name(),
			semver,
			strings.Join(plugger.Group[cli.NewSource]().Plugins(), ", "))
	},
}

func init() {
	plugger.Group[cli.SetupCLI]().Register(
		VersionSetupCLI, plugger.WithPlugin("version"))
}

// VersionSetupCLI adds the “version” command.
func VersionSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(versionCmd)
}
