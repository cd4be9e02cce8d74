package cmd

import (
	"fmt"

	"github.com/encodeous/aodv/core"
	"github.com/encodeous/aodv/state"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status <node id>",
	Aliases: []string{"s"},
	Short:   "Prints the neighbours and routing table of a running node",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := "inspect"
		if routesOnly, _ := cmd.Flags().GetBool("routes"); routesOnly {
			command = "routes"
		}
		result, err := core.IPCGet(state.NodeId(args[0]), command)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), result)
		return err
	},
	GroupID: "aodv",
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&core.IPCDir, "dir", core.IPCDir, "directory holding the control sockets")
	statusCmd.Flags().Bool("routes", false, "only print the routing table")
}
