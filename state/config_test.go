package state

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGraph_SimpleGraph(t *testing.T) {
	nodes := []string{"1", "2", "3", "4", "5"}
	input := `1, 2
3, 4
1,3,5`
	pairs, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.NoError(t, err)
	assert.ElementsMatch(t, pairs, []Pair[NodeId, NodeId]{
		{"1", "2"},
		{"3", "4"},
		{"1", "3"},
		{"3", "5"},
		{"1", "5"},
	})
}

func TestParseGraph_Groups(t *testing.T) {
	nodes := []string{"1", "2", "3", "4", "5", "6", "7"}
	input := `a = 1,2
b=3,,,4
c=5,6
d=a,b
d,d
7,d`
	pairs, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.NoError(t, err)
	assert.ElementsMatch(t, pairs, []Pair[NodeId, NodeId]{
		// d,d
		{"1", "2"},
		{"1", "3"},
		{"1", "4"},
		{"2", "3"},
		{"2", "4"},
		{"3", "4"},
		// 7,d
		{"1", "7"},
		{"2", "7"},
		{"3", "7"},
		{"4", "7"},
	})
}

func TestParseGraph_Cycle(t *testing.T) {
	nodes := []string{}
	input := `a = b
b = c
c = a`
	_, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.ErrorContains(t, err, "cycle detected in graph: [a b c]")
}

func TestParseGraph_EmptyGroup(t *testing.T) {
	nodes := []string{"1"}
	input := `a =`
	_, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.ErrorContains(t, err, "node/group list must not be empty")
}

func TestParseGraph_GroupNameIsNodeName(t *testing.T) {
	nodes := []string{"1"}
	input := `1 = 1`
	_, err := ParseGraph(strings.Split(input, "\n"), nodes)
	assert.ErrorContains(t, err, "group name must not be a node name: 1")
}

func failGraph(t *testing.T, graph string) {
	_, err := ParseGraph(strings.Split(graph, "\n"), []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"})
	assert.Error(t, err)
}

func TestParseGraph_InvalidGraph(t *testing.T) {
	failGraph(t, `this graph is a baddie`)
	failGraph(t, `=========,,,,`)
	failGraph(t, `#`)
	failGraph(t, `\n\n\n\n\n\n`)
	failGraph(t, `1`)
	failGraph(t, `1,2,3,4,5,6,a`)
	failGraph(t, `1,2,3,4,5,6,7,8,9,10,11,12,13,14,15`)
	failGraph(t, `,,,,,,,,,,,,,,,,`)
	failGraph(t, `a=a`)
}

func TestProtocolCfgDefaults(t *testing.T) {
	cfg := DefaultProtocolCfg()
	assert.Equal(t, time.Second, cfg.HelloInterval)
	assert.Equal(t, 6*time.Second, cfg.BroadcastIdSave)
	assert.Equal(t, 6*time.Second, cfg.MyRouteTimeout)
	assert.Equal(t, uint8(35), cfg.NetDiameter)
	assert.Equal(t, 15*time.Second, cfg.DeletePeriod)
	assert.Equal(t, uint8(10), cfg.MaxRepairTtl)
	assert.Equal(t, 2800*time.Millisecond, cfg.NetTraversalTime())
	assert.Equal(t, 2*time.Second, cfg.NeighborTimeout())
	assert.Equal(t, 880*time.Millisecond, cfg.LocalRepairTimeout())
}

func TestProtocolCfgKeepsOverrides(t *testing.T) {
	cfg := ProtocolCfg{ActiveRouteTimeout: 10 * time.Second, NetDiameter: 10}.WithDefaults()
	assert.Equal(t, 20*time.Second, cfg.MyRouteTimeout)
	assert.Equal(t, 50*time.Second, cfg.DeletePeriod)
	assert.Equal(t, uint8(3), cfg.MaxRepairTtl)
}

func TestSubnetBroadcast(t *testing.T) {
	assert.Equal(t, netip.MustParseAddr("10.1.0.255"), SubnetBroadcast(netip.MustParsePrefix("10.1.0.7/24")))
	assert.Equal(t, netip.MustParseAddr("10.1.255.255"), SubnetBroadcast(netip.MustParsePrefix("10.1.3.7/16")))
	assert.Equal(t, LimitedBroadcast, SubnetBroadcast(netip.MustParsePrefix("10.1.3.7/32")))
}

func TestInterfaceCfgToInterface(t *testing.T) {
	iface := InterfaceCfg{Name: "wlan0", Address: netip.MustParsePrefix("192.168.7.3/24")}.ToInterface(3)
	assert.Equal(t, 3, iface.Index)
	assert.Equal(t, netip.MustParseAddr("192.168.7.3"), iface.Local)
	assert.Equal(t, netip.MustParseAddr("192.168.7.255"), iface.Broadcast)
	assert.True(t, iface.Contains(netip.MustParseAddr("192.168.7.200")))
	assert.False(t, iface.Contains(netip.MustParseAddr("192.168.8.1")))
}

func TestLoadSimCfg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  - id: a
    address: 10.0.0.1/24
  - id: b
    address: 10.0.0.2/24
  - id: c
    address: 10.0.0.3/24
graph:
  - a, b
  - b, c
protocol:
  hello_interval: 2s
events:
  - at: 1s
    kind: send
    from: a
    to: c
duration: 10s
`), 0600))
	cfg, err := LoadSimCfg(path)
	require.NoError(t, err)
	require.NoError(t, SimConfigValidator(cfg))
	assert.Len(t, cfg.Nodes, 3)
	assert.Equal(t, 2*time.Second, cfg.Protocol.HelloInterval)
	assert.Equal(t, DefaultActiveRouteTimeout, cfg.Protocol.ActiveRouteTimeout)
	assert.Equal(t, 10*time.Second, cfg.Duration)
	require.Len(t, cfg.Events, 1)
	assert.Equal(t, SimSend, cfg.Events[0].Kind)
	assert.Equal(t, time.Second, cfg.Events[0].At)

	links, err := cfg.Links()
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair[NodeId, NodeId]{{"a", "b"}, {"b", "c"}}, links)
}

func TestLoadLocalCfg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
id: relay-1
interfaces:
  - name: wlan0
    address: 10.5.0.1/24
`), 0600))
	cfg, err := LoadLocalCfg(path)
	require.NoError(t, err)
	require.NoError(t, NodeConfigValidator(cfg))
	assert.Equal(t, uint16(Port), cfg.Port)
	assert.Equal(t, DefaultProtocolCfg(), cfg.Protocol)
}
