package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	nodeConfigPath = "node.yaml"
	simConfigPath  = "sim.yaml"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aodv",
	Short: "On-demand ad-hoc routing daemon",
	Long: `aodv discovers routes between nodes of a wireless ad-hoc network on demand.
Routes are found by flooding route requests, kept loop free with destination sequence numbers,
and expire when they are not used.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Create Configuration",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "aodv",
		Title: "Routing Commands",
	})
}
