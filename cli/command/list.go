// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Provides the "namon list" command for listing the network interfaces
// available for capture, as well as the current TCP and UDP connections
// together with their owning processes.

package command

import (
	"context"
	"strings"

	"github.com/siemens/namon/capture"
	"github.com/siemens/namon/cli"
	"github.com/siemens/namon/resolver"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
	"github.com/thediveo/klo"
)

// Builtin custom-columns templates
const (
	// InterfaceListTemplate defines the custom columns when listing network
	// interfaces.
	InterfaceListTemplate = "INTERFACE:{.Name},UP:{.Up},LOOPBACK:{.Loopback}"
	// InterfaceWideListTemplate additionally lists the interface addresses and
	// descriptions.
	InterfaceWideListTemplate = "INTERFACE:{.Name},UP:{.Up},LOOPBACK:{.Loopback},ADDRESSES:{.Addresses},DESCRIPTION:{.Description}"

	// ConnectionListTemplate defines the custom columns when listing
	// connections.
	ConnectionListTemplate = "PROTO:{.Kind},LOCAL:{.Local},REMOTE:{.Remote},PID:{.Pid}"
	// ConnectionWideListTemplate additionally lists the owning applications.
	ConnectionWideListTemplate = "PROTO:{.Kind},LOCAL:{.Local},REMOTE:{.Remote},PID:{.Pid},APP:{.App}"
)

// Connection is a single row of an OS connection table, together with the
// identity of its owning process.
type Connection struct {
	Kind   string `json:"kind"`
	Local  string `json:"local"`
	Remote string `json:"remote,omitempty"`
	Pid    int    `json:"pid"`
	App    string `json:"app,omitempty"`
}

// listCmd defines the "namon list" command.
var listCmd = &cobra.Command{
	Use:     "list [flags] [interfaces|connections]",
	Aliases: []string{"ls"},
	Short:   "List network interfaces or TCP/UDP connections with their processes",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
			return err
		}
		return cobra.OnlyValidArgs(cmd, args)
	},
	ValidArgs: []string{
		"interface", "interfaces",
		"connection", "connections",
	},
	RunE: list,
}

func init() {
	plugger.Group[cli.SetupCLI]().Register(ListSetupCLI, plugger.WithPlugin("list"))
}

// ListSetupCLI adds the “list” command.
func ListSetupCLI(cmd *cobra.Command) {
	cmd.AddCommand(listCmd)
	addPrinterFlags(listCmd, "")
}

// list either lists the network interfaces (default) or the connections.
func list(cmd *cobra.Command, args []string) error {
	if len(args) == 1 && strings.HasPrefix(args[0], "connection") {
		return listConnections(cmd)
	}
	return listInterfaces(cmd)
}

// listInterfaces prints the network interfaces available for capture.
func listInterfaces(cmd *cobra.Command) error {
	prn, err := getPrinter(cmd, &klo.Specs{
		DefaultColumnSpec: InterfaceListTemplate,
		WideColumnSpec:    InterfaceWideListTemplate,
	})
	if err != nil {
		return err
	}
	ifaces, err := capture.Interfaces()
	if err != nil {
		return err
	}
	return prn.Fprint(cmd.OutOrStdout(), ifaces)
}

// listConnections prints the current TCP and UDP connections over IPv4 and
// IPv6, together with the identities of their owning processes where
// available.
func listConnections(cmd *cobra.Command) error {
	prn, err := getPrinter(cmd, &klo.Specs{
		DefaultColumnSpec: ConnectionListTemplate,
		WideColumnSpec:    ConnectionWideListTemplate,
	})
	if err != nil {
		return err
	}
	conns, err := connections(cmd.Context(), resolver.New())
	if err != nil {
		return err
	}
	return prn.Fprint(cmd.OutOrStdout(), conns)
}

// connections fetches all connection tables from the specified resolver and
// adds the application identities of the owning processes, if the resolver's
// introspection session can be opened.
func connections(ctx context.Context, res *resolver.Resolver) ([]Connection, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	identities := res.Open(ctx) == nil
	if identities {
		defer res.Close()
	}
	apps := map[int]string{}
	conns := []Connection{}
	for _, kind := range resolver.Kinds {
		table, err := res.Table(kind)
		if err != nil {
			return nil, err
		}
		for _, row := range table {
			conn := Connection{
				Kind:   kind.String(),
				Local:  row.Local.String(),
				Pid:    row.Pid,
			}
			if row.Remote.IsValid() {
				conn.Remote = row.Remote.String()
			}
			if identities && row.Pid > 0 {
				app, ok := apps[row.Pid]
				if !ok {
					if app, err = res.AppIdentity(ctx, row.Pid); err != nil {
						log.Debugf("no identity for PID %d: %s", row.Pid, err.Error())
					}
					apps[row.Pid] = app
				}
				conn.App = app
			}
			conns = append(conns, conn)
		}
	}
	return conns, nil
}
