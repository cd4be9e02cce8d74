package cmd

import (
	"github.com/encodeous/aodv/core"
	"github.com/encodeous/aodv/state"
	"github.com/spf13/cobra"
)

var logPath string

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a routing node",
	Long:  `This will run the routing protocol on the interfaces listed in the node config. Binding port 654 usually requires elevated permissions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		return core.Bootstrap(nodeConfigPath, logPath, verbose)
	},
	GroupID: "aodv",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&nodeConfigPath, "node-config", "n", nodeConfigPath, "node-specific config")
	runCmd.Flags().StringVarP(&logPath, "log", "l", "", "also write logs to this file")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().BoolVarP(&state.DBG_log_router, "lroute", "r", false, "Write router events to console")
	runCmd.Flags().BoolVarP(&state.DBG_log_route_table, "ltable", "t", false, "Outputs route table to the console")
	runCmd.Flags().BoolVar(&state.DBG_debug, "debug", false, "Serve pprof, expvar and metrics on :6060")
	runCmd.Flags().StringVar(&core.IPCDir, "ipc-dir", core.IPCDir, "directory for the control socket")
	runCmd.Flags().BoolVar(&state.DBG_trace, "trace", false, "Write a runtime trace to trace.out")
}
