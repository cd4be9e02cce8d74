package cmd

import (
	"fmt"

	"github.com/encodeous/aodv/state"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Validates a simulation config and prints its radio links",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.LoadSimCfg(simConfigPath)
		if err != nil {
			return err
		}
		if err = state.SimConfigValidator(cfg); err != nil {
			return fmt.Errorf("invalid simulation config: %w", err)
		}
		links, err := cfg.Links()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		nodes := tablewriter.NewWriter(out)
		nodes.SetHeader([]string{"Node", "Address"})
		nodes.SetBorder(false)
		for _, n := range cfg.Nodes {
			nodes.Append([]string{string(n.Id), n.Address.String()})
		}
		nodes.Render()

		_, _ = fmt.Fprintf(out, "\n%d links\n", len(links))
		for _, l := range links {
			_, _ = fmt.Fprintf(out, "%s <-> %s\n", l.V1, l.V2)
		}
		return nil
	},
	GroupID: "aodv",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&simConfigPath, "config", "c", simConfigPath, "simulation config")
}
