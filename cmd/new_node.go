package cmd

import (
	"os"

	"github.com/encodeous/aodv/sim"
	"github.com/encodeous/aodv/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var newNodeCmd = &cobra.Command{
	Use:   "new-node",
	Short: "Create a node config interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := promptCreateNode()
		if err != nil {
			return err
		}
		if err = state.NodeConfigValidator(cfg); err != nil {
			return err
		}
		path, err := safeSaveFile(nodeConfigPath, "Node Config")
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		return os.WriteFile(path, out, 0600)
	},
	GroupID: "init",
}

var newSimCmd = &cobra.Command{
	Use:   "new-sim",
	Short: "Write an example simulation config",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := safeSaveFile(simConfigPath, "Simulation Config")
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(sim.ExampleCfg())
		if err != nil {
			return err
		}
		return os.WriteFile(path, out, 0600)
	},
	GroupID: "init",
}

func promptCreateNode() (*state.LocalCfg, error) {
	host, _ := os.Hostname()
	if state.NameValidator(host) != nil {
		host = "node1"
	}
	id, err := promptDefaultStr("Node id", host, state.NameValidator)
	if err != nil {
		return nil, err
	}
	itf, err := promptDefaultStr("Wireless interface", "wlan0", state.NameValidator)
	if err != nil {
		return nil, err
	}
	addr, err := promptDefaultPrefix("Interface address", "10.42.0.1/24")
	if err != nil {
		return nil, err
	}
	return &state.LocalCfg{
		Id:   state.NodeId(id),
		Port: state.Port,
		Interfaces: []state.InterfaceCfg{
			{Name: itf, Address: addr},
		},
		Protocol: state.DefaultProtocolCfg(),
	}, nil
}
