// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Implements the namon "root" command with its global CLI flags. Additionally
// loads the effective configuration and runs some checks on some of those
// global CLI flags, where necessary, so individual commands do not need to
// check them themselves.

package command

import (
	"github.com/siemens/namon/cli"
	"github.com/siemens/namon/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/go-plugger/v3"
	"golang.org/x/exp/slices"
)

// Flag annotation for grouping mutually exclusive flags. Due to the open-ended
// plugin architecture of namon we cannot directly use cobra's
// MarkFlagsMutuallyExclusive in plugins, but instead plugin need to annotate
// their flags and we then gather the groups with their flag members in order to
// issue MarkFlagsMutuallyExclusive as necessary.
const MutualFlagGroupAnnotation = "mutually-exclusive-group"

// SourceGroup is the name of an annotation value for flags that should be
// mutually exclusive for specifying the packet source.
const SourceGroup = "source"

// ConfigPath optionally specifies a YAML configuration file.
var ConfigPath string

// effective is the effective configuration, loaded just before running the
// command.
var effective = config.Default()

// rootCmd represents the Cobra "root" command thus the namon CLI itself.
var rootCmd = &cobra.Command{
	Use:   "namon",
	Short: "Capture network traffic attributed to local processes",
	Long: `namon is a CLI tool for capturing network traffic on the local host, writing
the captured packets to a pcapng file where each packet is annotated with the
process owning its TCP or UDP flow, as well as the process' command line.`,
	// See: https://github.com/spf13/cobra/issues/340
	SilenceUsage:  true,
	SilenceErrors: false,
	// Load the configuration, then check mutually exclusive CLI args, ...
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if ConfigPath != "" {
			var err error
			if cfg, err = config.Load(ConfigPath); err != nil {
				return err
			}
			log.Debugf("loaded configuration from %q", ConfigPath)
		}
		effective = cfg
		// Run the registered before-the-command plugins
		for _, beforeCmd := range plugger.Group[cli.BeforeCommand]().Symbols() {
			if err := beforeCmd(cmd, effective); err != nil {
				return err
			}
		}
		return nil
	},
}

// SetupCLI registers the global ("persistent") CLI flags, as well as the
// (sub)commands. The individual commands are registered via a plugin-mechanism.
func SetupCLI() *cobra.Command {
	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&ConfigPath, "config", "c", "",
		"YAML configuration file; CLI flags override configuration settings")

	// Call registered plugins in order to add further CLI args as well as
	// commands to the root command (or below).
	for _, setupCLI := range plugger.Group[cli.SetupCLI]().Symbols() {
		setupCLI(rootCmd)
	}
	// Set groups of mutually exclusive flags as annotated.
	mutuallyExclusives(rootCmd)
	// Fill in/expand command example sections, where additional command
	// examples are available.
	for _, cmd := range rootCmd.Commands() {
		examples := cli.Examples(cmd.Name())
		if examples == "" {
			continue
		}
		cmd.Example = examples
	}

	return rootCmd
}

// Config returns the effective configuration of the command being run, that
// is, the configuration file settings (or defaults) with CLI flags applied.
func Config() *config.Config {
	return effective
}

// Annotate annotates the flag identified by name with the key=ann.
func Annotate(fs *pflag.FlagSet, flagname, key, ann string) {
	fs.SetAnnotation(flagname, key, []string{ann})
}

// exclusivesMap maps an "exclusive" group (name) to its mutually exclusive
// flags (names).
type exclusivesMap map[string][]string

// mutuallyExclusives starts with the specified command and collects mutually
// exclusive flags as identified by their annotations. It then configures them
// into their groups. This process then recursively repeats with each child
// command.
func mutuallyExclusives(cmd *cobra.Command) {
	exclusives := exclusivesMap{}
	cmd.MarkFlagsMutuallyExclusive() // hack: trigger merging if not already happened
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		group := flag.Annotations[MutualFlagGroupAnnotation]
		if len(group) != 1 {
			return
		}
		name := flag.Name
		members := exclusives[group[0]]
		if slices.Contains(members, name) {
			return
		}
		exclusives[group[0]] = append(exclusives[group[0]], name)
	})
	for _, members := range exclusives {
		cmd.MarkFlagsMutuallyExclusive(members...)
	}
	for _, subcmd := range cmd.Commands() {
		mutuallyExclusives(subcmd)
	}
}
