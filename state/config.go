package state

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// InterfaceCfg describes a local interface the router runs on
type InterfaceCfg struct {
	Name    string
	Address netip.Prefix // local address and subnet, e.g. 10.1.0.1/24
}

// LocalCfg represents local node-level configuration
type LocalCfg struct {
	Id         NodeId         // unique id for this node
	Port       uint16         `yaml:",omitempty"`         // control port, defaults to 654
	Interfaces []InterfaceCfg                             // interfaces the protocol runs on
	LogPath    string         `yaml:"log_path,omitempty"` // if not empty, logs are also written to this file
	Protocol   ProtocolCfg    `yaml:",omitempty"`         // protocol tuning, unset fields take the defaults
}

// ProtocolCfg holds the protocol timing and behaviour parameters
type ProtocolCfg struct {
	HelloInterval          time.Duration `yaml:"hello_interval,omitempty"`
	BroadcastIdSave        time.Duration `yaml:"broadcast_id_save,omitempty"` // how long a flooded request id is remembered
	ActiveRouteTimeout     time.Duration `yaml:"active_route_timeout,omitempty"`
	MyRouteTimeout         time.Duration `yaml:"my_route_timeout,omitempty"` // lifetime advertised in replies about ourselves
	NetDiameter            uint8         `yaml:"net_diameter,omitempty"`
	NodeTraversalTime      time.Duration `yaml:"node_traversal_time,omitempty"`
	AllowedHelloLoss       int           `yaml:"allowed_hello_loss,omitempty"`
	PurgeFrequency         time.Duration `yaml:"purge_frequency,omitempty"`
	DeletePeriod           time.Duration `yaml:"delete_period,omitempty"`
	RreqRetries            int           `yaml:"rreq_retries,omitempty"` // a negative value disables retries
	MaxRepairTtl           uint8         `yaml:"max_repair_ttl,omitempty"`
	DisableHello           bool          `yaml:"disable_hello,omitempty"`
	DisableLocalRepair     bool          `yaml:"disable_local_repair,omitempty"`
	GratuitousReply        bool          `yaml:"gratuitous_reply,omitempty"`
	BroadcastCacheCapacity uint64        `yaml:"broadcast_cache_capacity,omitempty"` // 0 keeps every record for the whole save window
}

func DefaultProtocolCfg() ProtocolCfg {
	return ProtocolCfg{}.WithDefaults()
}

// WithDefaults returns a copy of the config where every unset field holds its default
func (c ProtocolCfg) WithDefaults() ProtocolCfg {
	if c.HelloInterval == 0 {
		c.HelloInterval = DefaultHelloInterval
	}
	if c.BroadcastIdSave == 0 {
		c.BroadcastIdSave = DefaultBroadcastIdSave
	}
	if c.ActiveRouteTimeout == 0 {
		c.ActiveRouteTimeout = DefaultActiveRouteTimeout
	}
	if c.MyRouteTimeout == 0 {
		c.MyRouteTimeout = 2 * c.ActiveRouteTimeout
	}
	if c.NetDiameter == 0 {
		c.NetDiameter = DefaultNetDiameter
	}
	if c.NodeTraversalTime == 0 {
		c.NodeTraversalTime = DefaultNodeTraversalTime
	}
	if c.AllowedHelloLoss == 0 {
		c.AllowedHelloLoss = DefaultAllowedHelloLoss
	}
	if c.PurgeFrequency == 0 {
		c.PurgeFrequency = DefaultPurgeFrequency
	}
	if c.DeletePeriod == 0 {
		c.DeletePeriod = 5 * max(c.ActiveRouteTimeout, c.HelloInterval)
	}
	if c.RreqRetries == 0 {
		c.RreqRetries = DefaultRreqRetries
	}
	if c.MaxRepairTtl == 0 {
		c.MaxRepairTtl = uint8(max(1, int(c.NetDiameter)*3/10))
	}
	return c
}

// NetTraversalTime is the estimated time for a message to cross the whole network
func (c ProtocolCfg) NetTraversalTime() time.Duration {
	return 2 * c.NodeTraversalTime * time.Duration(c.NetDiameter)
}

// PathDiscoveryTime bounds a single discovery attempt
func (c ProtocolCfg) PathDiscoveryTime() time.Duration {
	return 2 * c.NetTraversalTime()
}

// NeighborTimeout is how long a neighbour stays alive without being heard from
func (c ProtocolCfg) NeighborTimeout() time.Duration {
	return time.Duration(c.AllowedHelloLoss) * c.HelloInterval
}

// LocalRepairTimeout is how long a local repair may take before a route error is sent
func (c ProtocolCfg) LocalRepairTimeout() time.Duration {
	return 2 * c.NodeTraversalTime * time.Duration(int(c.MaxRepairTtl)+1)
}

// ToInterface builds the runtime view of the interface
func (c InterfaceCfg) ToInterface(index int) Interface {
	return Interface{
		Index:     index,
		Name:      c.Name,
		Local:     c.Address.Addr(),
		Broadcast: SubnetBroadcast(c.Address),
		Prefix:    c.Address.Masked(),
	}
}

// SubnetBroadcast returns the directed broadcast address of an IPv4 subnet
func SubnetBroadcast(p netip.Prefix) netip.Addr {
	if !p.Addr().Is4() || p.Bits() >= 32 {
		return LimitedBroadcast
	}
	b := p.Masked().Addr().As4()
	host := uint32(1)<<(32-p.Bits()) - 1
	b[0] |= byte(host >> 24)
	b[1] |= byte(host >> 16)
	b[2] |= byte(host >> 8)
	b[3] |= byte(host)
	return netip.AddrFrom4(b)
}

type SimEventKind string

const (
	SimSend     SimEventKind = "send"      // From sends a data packet to To, discovering a route if needed
	SimLinkDown SimEventKind = "link-down" // the radio link between From and To breaks
	SimLinkUp   SimEventKind = "link-up"
	SimDump     SimEventKind = "dump" // print the routing table of From, or of every node
)

type SimEvent struct {
	At   time.Duration
	Kind SimEventKind
	From NodeId `yaml:",omitempty"`
	To   NodeId `yaml:",omitempty"`
}

type SimNodeCfg struct {
	Id      NodeId
	Address netip.Prefix
}

// SimCfg describes a simulated network, all nodes share one radio subnet
type SimCfg struct {
	Nodes    []SimNodeCfg
	Graph    []string // radio adjacency, see ParseGraph
	Protocol ProtocolCfg   `yaml:",omitempty"`
	Events   []SimEvent    `yaml:",omitempty"`
	Duration time.Duration `yaml:",omitempty"`
	Loss     float64       `yaml:",omitempty"` // probability a single transmission is lost
	Seed     uint64        `yaml:",omitempty"`
}

func (c *SimCfg) NodeIds() []string {
	ids := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		ids = append(ids, string(n.Id))
	}
	return ids
}

func (c *SimCfg) GetNode(id NodeId) (SimNodeCfg, bool) {
	idx := slices.IndexFunc(c.Nodes, func(n SimNodeCfg) bool {
		return n.Id == id
	})
	if idx == -1 {
		return SimNodeCfg{}, false
	}
	return c.Nodes[idx], true
}

// Links expands the graph into the list of radio links
func (c *SimCfg) Links() ([]Pair[NodeId, NodeId], error) {
	return ParseGraph(c.Graph, c.NodeIds())
}

func LoadLocalCfg(path string) (*LocalCfg, error) {
	var cfg LocalCfg
	if err := readYaml(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = Port
	}
	cfg.Protocol = cfg.Protocol.WithDefaults()
	return &cfg, nil
}

func LoadSimCfg(path string) (*SimCfg, error) {
	var cfg SimCfg
	if err := readYaml(path, &cfg); err != nil {
		return nil, err
	}
	cfg.Protocol = cfg.Protocol.WithDefaults()
	return &cfg, nil
}

func readYaml(path string, out any) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err = yaml.Unmarshal(file, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

var errEmptyList = errors.New(`node/group list must not be empty`)

func parseSymbolList(s string, validSymbols []string) ([]string, error) {
	spl := strings.Split(strings.TrimSpace(s), ",")
	line := make([]string, 0)
	for _, s := range spl {
		x := strings.TrimSpace(s)
		if x == "" {
			continue
		}
		if !slices.Contains(validSymbols, x) {
			return nil, fmt.Errorf(`%s is not a valid node/group`, x)
		}
		line = append(line, x)
	}
	if len(line) == 0 {
		return nil, errEmptyList
	}
	slices.Sort(line)
	return line, nil
}

/*
ParseGraph Graph syntax is something like this:

Group1 = node1, node2, node3

Group2 = node4, node5

Group1, Group2, OtherNode // Group1, Group2, OtherNode will all be interconnected, but not within Group1 or Group2

Group1, Group1 // every node is connected to every other node

node8, node9 // node8 and node9 will be connected

graph represents the above graph
nodes represents a set of unique terminal nodes that the graph will evaluate down to
*/
func ParseGraph(graph []string, nodes []string) ([]Pair[NodeId, NodeId], error) {
	// why can't we just have unordered_set<Pair<NodeId, NodeId>> :(

	parsedPairings := make([]Pair[string, string], 0)

	groups := make(map[string][]string)

	symbols := slices.Clone(nodes)

	// pass 0, collect all symbols

	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if strings.Contains(line, "=") {
			// group definition
			spl := strings.Split(line, "=")
			if len(spl) != 2 {
				return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
			}
			grp := strings.TrimSpace(spl[0])
			if slices.Contains(nodes, grp) {
				return nil, fmt.Errorf("group name must not be a node name: %s", grp)
			}
			symbols = append(symbols, grp)
		}
	}
	slices.Sort(symbols)
	symbols = slices.Compact(symbols)

	// used for topological sorting
	// map: group -> []<groups that the node depends on>
	topo := make(map[string][]string)
	expansion := make(map[string][]string)

	// pass 1, parse graph
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if strings.Contains(line, "=") {
			spl := strings.Split(line, "=")
			grp := strings.TrimSpace(spl[0])
			if _, ok := groups[grp]; ok {
				return nil, fmt.Errorf("duplicate group name: %s", grp)
			}
			lst, err := parseSymbolList(spl[1], symbols)
			if err != nil {
				return nil, err
			}
			// track dependencies
			deps := make([]string, 0)
			for _, l := range lst {
				if !slices.Contains(nodes, l) {
					// depends on a group
					deps = append(deps, l)
				} else {
					expansion[grp] = append(expansion[grp], l)
				}
			}
			slices.Sort(deps)
			deps = slices.Compact(deps)

			topo[grp] = deps
			groups[grp] = lst
		} else {
			names, err := parseSymbolList(line, symbols)
			if err != nil {
				return nil, err
			}
			if len(names) < 2 {
				return nil, fmt.Errorf("invalid pairing, %v", names)
			}
			interconnectNodes := make([]NodeId, 0)
			for _, name := range names {
				for _, node := range interconnectNodes {
					parsedPairings = append(parsedPairings, MakeSortedPair(string(node), name))
				}
				interconnectNodes = append(interconnectNodes, NodeId(name))
			}
			SortPairs(parsedPairings)
			parsedPairings = slices.Compact(parsedPairings)
		}
	}

	// pass 2, expand group names
	// just topological sorting
	for len(topo) > 0 {
		// find free group
		var group string
		for k, v := range topo {
			if len(v) == 0 {
				group = k
				break
			}
		}
		if group == "" {
			cycleNodes := make([]string, 0)
			for node := range topo {
				cycleNodes = append(cycleNodes, node)
			}
			slices.Sort(cycleNodes)
			return nil, fmt.Errorf("cycle detected in graph: %v", cycleNodes)
		}
		delete(topo, group)

		// remove and expand the group for every dependent
		for k, deps := range topo {
			if slices.Contains(deps, group) {
				// remove it from the group and copy the value to the expansion
				expansion[k] = append(expansion[k], expansion[group]...)
				slices.Sort(expansion[k])
				expansion[k] = slices.Compact(expansion[k])

				// remove group from deps
				x := 0
				for _, dep := range deps {
					if dep == group {
						// remove
					} else {
						deps[x] = dep
						x++
					}
				}
				deps = deps[:x]
				topo[k] = deps
			}
		}
	}

	// pass 3, rewrite pairings
	pairings := make([]Pair[NodeId, NodeId], 0)
	for _, pair := range parsedPairings {
		x := make([]NodeId, 0)
		if slices.Contains(nodes, pair.V1) {
			x = append(x, NodeId(pair.V1))
		} else {
			for _, exp := range expansion[pair.V1] {
				x = append(x, NodeId(exp))
			}
		}
		y := make([]NodeId, 0)
		if slices.Contains(nodes, pair.V2) {
			y = append(y, NodeId(pair.V2))
		} else {
			for _, exp := range expansion[pair.V2] {
				y = append(y, NodeId(exp))
			}
		}
		for _, x1 := range x {
			for _, y1 := range y {
				if x1 != y1 {
					pairings = append(pairings, MakeSortedPair(x1, y1))
				}
			}
		}
		SortPairs(pairings)
		pairings = slices.Compact(pairings)
	}
	return pairings, nil
}
