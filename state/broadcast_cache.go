package state

import (
	"net/netip"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type broadcastId struct {
	Origin netip.Addr
	Id     uint32
}

// BroadcastIdCache remembers (originator, request id) pairs of flooded requests
// for a save window. The stored value is the instant the record expires at, which
// lets the cache follow the router's clock rather than the wall clock.
type BroadcastIdCache struct {
	window time.Duration
	cache  *ttlcache.Cache[broadcastId, time.Time]
}

func NewBroadcastIdCache(window time.Duration, capacity uint64) *BroadcastIdCache {
	opts := []ttlcache.Option[broadcastId, time.Time]{
		ttlcache.WithTTL[broadcastId, time.Time](window),
		ttlcache.WithDisableTouchOnHit[broadcastId, time.Time](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[broadcastId, time.Time](capacity))
	}
	return &BroadcastIdCache{
		window: window,
		cache:  ttlcache.New[broadcastId, time.Time](opts...),
	}
}

// Insert records the pair, doing nothing if it is already present
func (c *BroadcastIdCache) Insert(origin netip.Addr, id uint32, now time.Time) {
	if c.Contains(origin, id, now) {
		return
	}
	c.cache.Set(broadcastId{origin, id}, now.Add(c.window), ttlcache.DefaultTTL)
}

func (c *BroadcastIdCache) Contains(origin netip.Addr, id uint32, now time.Time) bool {
	item := c.cache.Get(broadcastId{origin, id})
	if item == nil {
		return false
	}
	return now.Before(item.Value())
}

// Purge drops every record older than the save window
func (c *BroadcastIdCache) Purge(now time.Time) int {
	n := 0
	for key, item := range c.cache.Items() {
		if !now.Before(item.Value()) {
			c.cache.Delete(key)
			n++
		}
	}
	c.cache.DeleteExpired()
	return n
}

func (c *BroadcastIdCache) Len() int {
	return c.cache.Len()
}
