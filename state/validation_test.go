package state

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameValidator_Valid(t *testing.T) {
	assert.NoError(t, NameValidator("1"))
	assert.NoError(t, NameValidator("ab_cd"))
	assert.NoError(t, NameValidator("abcd-a.com"))
}

func TestNameValidator_Invalid(t *testing.T) {
	assert.Error(t, NameValidator("1A"))
	assert.Error(t, NameValidator("node name"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("\t"))
	assert.Error(t, NameValidator("abcd-a.com\\hi"))
	assert.Error(t, NameValidator(strings.Repeat("a", 200)))
}

func TestAddressValidator(t *testing.T) {
	assert.NoError(t, AddressValidator(netip.MustParsePrefix("10.0.0.1/24")))
	assert.NoError(t, AddressValidator(netip.MustParsePrefix("10.0.0.1/32")))
	assert.Error(t, AddressValidator(netip.MustParsePrefix("10.0.0.0/24")))
	assert.Error(t, AddressValidator(netip.MustParsePrefix("10.0.0.255/24")))
	assert.Error(t, AddressValidator(netip.MustParsePrefix("fd00::1/64")))
	assert.Error(t, AddressValidator(netip.Prefix{}))
}

func validSim() *SimCfg {
	return &SimCfg{
		Nodes: []SimNodeCfg{
			{Id: "a", Address: netip.MustParsePrefix("10.0.0.1/24")},
			{Id: "b", Address: netip.MustParsePrefix("10.0.0.2/24")},
		},
		Graph:    []string{"a, b"},
		Protocol: DefaultProtocolCfg(),
		Events:   []SimEvent{{Kind: SimSend, From: "a", To: "b"}, {Kind: SimDump}},
	}
}

func TestSimConfigValidator(t *testing.T) {
	assert.NoError(t, SimConfigValidator(validSim()))

	dupAddr := validSim()
	dupAddr.Nodes[1].Address = dupAddr.Nodes[0].Address
	assert.ErrorContains(t, SimConfigValidator(dupAddr), "share address")

	otherSubnet := validSim()
	otherSubnet.Nodes[1].Address = netip.MustParsePrefix("10.0.1.2/24")
	assert.ErrorContains(t, SimConfigValidator(otherSubnet), "not on subnet")

	badGraph := validSim()
	badGraph.Graph = []string{"a, z"}
	assert.ErrorContains(t, SimConfigValidator(badGraph), "z is not a valid node/group")

	badEvent := validSim()
	badEvent.Events = append(badEvent.Events, SimEvent{Kind: "teleport"})
	assert.ErrorContains(t, SimConfigValidator(badEvent), "unknown kind")

	selfSend := validSim()
	selfSend.Events = []SimEvent{{Kind: SimLinkDown, From: "a", To: "a"}}
	assert.Error(t, SimConfigValidator(selfSend))
}

func TestNodeConfigValidator(t *testing.T) {
	cfg := &LocalCfg{
		Id: "n1",
		Interfaces: []InterfaceCfg{
			{Name: "wlan0", Address: netip.MustParsePrefix("10.0.0.1/24")},
			{Name: "wlan1", Address: netip.MustParsePrefix("10.0.0.1/16")},
		},
		Protocol: DefaultProtocolCfg(),
	}
	assert.ErrorContains(t, NodeConfigValidator(cfg), "share address")
	cfg.Interfaces = cfg.Interfaces[:1]
	assert.NoError(t, NodeConfigValidator(cfg))
	cfg.Interfaces = nil
	assert.Error(t, NodeConfigValidator(cfg))
}
