package state

import (
	"net/netip"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// NeighborSet tracks the liveness of one-hop neighbours. Like BroadcastIdCache,
// the expiry instant is kept as the value so that it follows the router's clock.
type NeighborSet struct {
	cache *ttlcache.Cache[netip.Addr, time.Time]
}

func NewNeighborSet() *NeighborSet {
	return &NeighborSet{
		cache: ttlcache.New[netip.Addr, time.Time](
			ttlcache.WithTTL[netip.Addr, time.Time](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[netip.Addr, time.Time](),
		),
	}
}

// Update extends the neighbour's expiry, it is never shortened
func (n *NeighborSet) Update(addr netip.Addr, expire time.Time) {
	if item := n.cache.Get(addr); item != nil && item.Value().After(expire) {
		return
	}
	n.cache.Set(addr, expire, ttlcache.NoTTL)
}

func (n *NeighborSet) IsNeighbor(addr netip.Addr, now time.Time) bool {
	item := n.cache.Get(addr)
	return item != nil && now.Before(item.Value())
}

func (n *NeighborSet) Remove(addr netip.Addr) {
	n.cache.Delete(addr)
}

// Expired removes and returns every neighbour whose expiry has passed, in address order
func (n *NeighborSet) Expired(now time.Time) []netip.Addr {
	lost := make([]netip.Addr, 0)
	for addr, item := range n.cache.Items() {
		if !now.Before(item.Value()) {
			lost = append(lost, addr)
		}
	}
	for _, addr := range lost {
		n.cache.Delete(addr)
	}
	slices.SortFunc(lost, netip.Addr.Compare)
	return lost
}

func (n *NeighborSet) Addrs() []netip.Addr {
	addrs := n.cache.Keys()
	slices.SortFunc(addrs, netip.Addr.Compare)
	return addrs
}
