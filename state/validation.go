package state

import (
	"fmt"
	"net/netip"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func AddressValidator(p netip.Prefix) error {
	if !p.IsValid() {
		return fmt.Errorf("address %v is invalid", p)
	}
	if !p.Addr().Is4() {
		return fmt.Errorf("address %s is not IPv4", p)
	}
	if p.Addr() == p.Masked().Addr() || p.Addr() == SubnetBroadcast(p) {
		if p.Bits() < 31 {
			return fmt.Errorf("address %s is not a host address", p)
		}
	}
	return nil
}

func ProtocolConfigValidator(cfg *ProtocolCfg) error {
	if cfg.HelloInterval < 0 || cfg.ActiveRouteTimeout < 0 || cfg.NodeTraversalTime < 0 ||
		cfg.BroadcastIdSave < 0 || cfg.PurgeFrequency < 0 || cfg.DeletePeriod < 0 || cfg.MyRouteTimeout < 0 {
		return fmt.Errorf("protocol timers must not be negative")
	}
	if cfg.AllowedHelloLoss < 0 {
		return fmt.Errorf("allowed_hello_loss must not be negative")
	}
	if cfg.MaxRepairTtl > cfg.NetDiameter && cfg.NetDiameter != 0 {
		return fmt.Errorf("max_repair_ttl %d exceeds net_diameter %d", cfg.MaxRepairTtl, cfg.NetDiameter)
	}
	return nil
}

func NodeConfigValidator(node *LocalCfg) error {
	err := NameValidator(string(node.Id))
	if err != nil {
		return err
	}
	if len(node.Interfaces) == 0 {
		return fmt.Errorf("node %s has no interfaces", node.Id)
	}
	seen := make(map[netip.Addr]string)
	for _, iface := range node.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("interface name must not be empty")
		}
		if err := AddressValidator(iface.Address); err != nil {
			return fmt.Errorf("interface %s: %w", iface.Name, err)
		}
		if other, ok := seen[iface.Address.Addr()]; ok {
			return fmt.Errorf("interfaces %s and %s share address %s", other, iface.Name, iface.Address.Addr())
		}
		seen[iface.Address.Addr()] = iface.Name
	}
	if node.LogPath != "" {
		if err := PathValidator(node.LogPath); err != nil {
			return err
		}
	}
	return ProtocolConfigValidator(&node.Protocol)
}

func SimConfigValidator(cfg *SimCfg) error {
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("simulation has no nodes")
	}
	ids := make(map[NodeId]bool)
	addrs := make(map[netip.Addr]NodeId)
	var subnet netip.Prefix
	for _, node := range cfg.Nodes {
		if err := NameValidator(string(node.Id)); err != nil {
			return err
		}
		if ids[node.Id] {
			return fmt.Errorf("duplicate node %s", node.Id)
		}
		ids[node.Id] = true
		if err := AddressValidator(node.Address); err != nil {
			return fmt.Errorf("node %s: %w", node.Id, err)
		}
		if other, ok := addrs[node.Address.Addr()]; ok {
			return fmt.Errorf("nodes %s and %s share address %s", other, node.Id, node.Address.Addr())
		}
		addrs[node.Address.Addr()] = node.Id
		if !subnet.IsValid() {
			subnet = node.Address.Masked()
		} else if subnet != node.Address.Masked() {
			return fmt.Errorf("node %s is not on subnet %s", node.Id, subnet)
		}
	}
	if _, err := cfg.Links(); err != nil {
		return err
	}
	for i, ev := range cfg.Events {
		if ev.At < 0 {
			return fmt.Errorf("event %d: negative time", i)
		}
		switch ev.Kind {
		case SimSend, SimLinkDown, SimLinkUp:
			if !ids[ev.From] || !ids[ev.To] {
				return fmt.Errorf("event %d (%s): unknown node %s or %s", i, ev.Kind, ev.From, ev.To)
			}
			if ev.From == ev.To {
				return fmt.Errorf("event %d (%s): from and to must differ", i, ev.Kind)
			}
		case SimDump:
			if ev.From != "" && !ids[ev.From] {
				return fmt.Errorf("event %d (%s): unknown node %s", i, ev.Kind, ev.From)
			}
		default:
			return fmt.Errorf("event %d: unknown kind %q", i, ev.Kind)
		}
	}
	if cfg.Loss < 0 || cfg.Loss >= 1 {
		return fmt.Errorf("loss must be in [0, 1)")
	}
	return ProtocolConfigValidator(&cfg.Protocol)
}
