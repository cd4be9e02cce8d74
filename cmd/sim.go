package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/encodeous/aodv/core"
	"github.com/encodeous/aodv/sim"
	"github.com/encodeous/aodv/state"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a scripted simulation",
	Long:  `Runs every node of the simulation config against an in-memory radio network on a virtual clock, then prints the routing tables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.LoadSimCfg(simConfigPath)
		if err != nil {
			return err
		}
		if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
			cfg.Duration = d
		}
		level := slog.LevelWarn
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		logger, closer, err := core.NewLogger(os.Stderr, "sim", level, "")
		if err != nil {
			return err
		}
		defer closer.Close()

		res, err := sim.Run(cfg, logger, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "\nsimulated %s: %d data sent, %d delivered, %d dropped, %d control frames, %d frames lost\n",
			res.Elapsed, res.Stats.DataSent, res.Stats.DataDelivered, res.Stats.DataDropped,
			res.Stats.ControlFrames, res.Stats.FramesLost)
		return err
	},
	GroupID: "aodv",
}

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().StringVarP(&simConfigPath, "config", "c", simConfigPath, "simulation config")
	simCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	simCmd.Flags().Duration("duration", 0, "override the simulated duration")
}
