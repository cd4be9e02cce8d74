package state

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcastIdCacheWindow(t *testing.T) {
	c := NewBroadcastIdCache(6*time.Second, 16)
	assert.False(t, c.Contains(addrA, 1, epoch))

	c.Insert(addrA, 1, epoch)
	assert.True(t, c.Contains(addrA, 1, epoch))
	assert.True(t, c.Contains(addrA, 1, epoch.Add(5*time.Second)))
	assert.False(t, c.Contains(addrA, 2, epoch))
	assert.False(t, c.Contains(addrB, 1, epoch))
	assert.False(t, c.Contains(addrA, 1, epoch.Add(6*time.Second)))
}

func TestBroadcastIdCacheInsertIsIdempotent(t *testing.T) {
	c := NewBroadcastIdCache(6*time.Second, 16)
	c.Insert(addrA, 1, epoch)
	// a second insert must not extend the window
	c.Insert(addrA, 1, epoch.Add(4*time.Second))
	assert.False(t, c.Contains(addrA, 1, epoch.Add(7*time.Second)))
	assert.Equal(t, 1, c.Len())
}

func TestBroadcastIdCachePurge(t *testing.T) {
	c := NewBroadcastIdCache(6*time.Second, 16)
	c.Insert(addrA, 1, epoch)
	c.Insert(addrB, 1, epoch.Add(3*time.Second))

	assert.Equal(t, 0, c.Purge(epoch.Add(5*time.Second)))
	assert.Equal(t, 1, c.Purge(epoch.Add(6*time.Second)))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(addrB, 1, epoch.Add(6*time.Second)))
}

func TestNeighborSet(t *testing.T) {
	n := NewNeighborSet()
	n.Update(addrB, epoch.Add(2*time.Second))
	n.Update(addrA, epoch.Add(time.Second))
	// never shortened
	n.Update(addrB, epoch.Add(time.Second))

	assert.True(t, n.IsNeighbor(addrA, epoch))
	assert.Equal(t, []netip.Addr{addrA, addrB}, n.Addrs())

	lost := n.Expired(epoch.Add(time.Second))
	assert.Equal(t, []netip.Addr{addrA}, lost)
	assert.False(t, n.IsNeighbor(addrA, epoch))
	assert.True(t, n.IsNeighbor(addrB, epoch.Add(time.Second)))

	n.Remove(addrB)
	assert.Empty(t, n.Addrs())
}

func TestBroadcastIdCacheUnboundedKeepsWindow(t *testing.T) {
	c := NewBroadcastIdCache(6*time.Second, DefaultProtocolCfg().BroadcastCacheCapacity)
	for id := uint32(0); id < 5000; id++ {
		c.Insert(addrA, id, epoch)
	}
	// a flood of distinct requests must not evict the oldest record early
	assert.True(t, c.Contains(addrA, 0, epoch.Add(5*time.Second)))
	assert.Equal(t, 5000, c.Len())
}
