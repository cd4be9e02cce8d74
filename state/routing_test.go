package state

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrecursorSetStaysSorted(t *testing.T) {
	e := RouteEntry{}
	assert.True(t, e.InsertPrecursor(netip.MustParseAddr("10.0.0.9")))
	assert.True(t, e.InsertPrecursor(netip.MustParseAddr("10.0.0.2")))
	assert.False(t, e.InsertPrecursor(netip.MustParseAddr("10.0.0.9")))
	assert.False(t, e.InsertPrecursor(netip.Addr{}))
	assert.True(t, e.InsertPrecursor(netip.MustParseAddr("10.0.0.5")))
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("10.0.0.2"),
		netip.MustParseAddr("10.0.0.5"),
		netip.MustParseAddr("10.0.0.9"),
	}, e.Precursors)

	assert.True(t, e.DeletePrecursor(netip.MustParseAddr("10.0.0.5")))
	assert.False(t, e.DeletePrecursor(netip.MustParseAddr("10.0.0.5")))
	assert.False(t, e.HasPrecursor(netip.MustParseAddr("10.0.0.5")))
	assert.True(t, e.HasPrecursor(netip.MustParseAddr("10.0.0.9")))
}

func TestRouteEntryExpiry(t *testing.T) {
	now := time.Unix(100, 0)
	e := RouteEntry{Flag: RouteUp, Lifetime: now.Add(time.Second)}
	assert.False(t, e.IsExpired(now))
	assert.True(t, e.IsUsable(now))
	assert.True(t, e.IsExpired(now.Add(time.Second)))
	assert.False(t, e.IsUsable(now.Add(time.Second)))
	e.Flag = RouteDown
	assert.False(t, e.IsUsable(now))
}

func TestCloneDoesNotShare(t *testing.T) {
	e := RouteEntry{Precursors: []netip.Addr{netip.MustParseAddr("10.0.0.1")}}
	c := e.Clone()
	c.Precursors[0] = netip.MustParseAddr("10.0.0.2")
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), e.Precursors[0])
}

func TestSeqnoCompare(t *testing.T) {
	assert.True(t, SeqnoLt(1, 2))
	assert.False(t, SeqnoLt(2, 2))
	assert.True(t, SeqnoLe(2, 2))
	assert.True(t, SeqnoGt(3, 2))
	// rollover
	assert.True(t, SeqnoLt(MaxSeqno, 1))
	assert.True(t, SeqnoGt(0, MaxSeqno-5))
	assert.Equal(t, uint32(1), SeqnoMax(MaxSeqno, 1))
	assert.Equal(t, uint32(7), SeqnoMax(7, 3))
}
