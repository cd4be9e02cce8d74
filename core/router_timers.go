package core

import (
	"time"

	"github.com/encodeous/aodv/protocol"
	"github.com/encodeous/aodv/state"
)

func (r *Router) startTimers() {
	r.bcastTimer = r.clock.AfterFunc(r.cfg.BroadcastIdSave, r.onBroadcastPurge)
	r.purgeTimer = r.clock.AfterFunc(r.cfg.PurgeFrequency, r.onRoutePurge)
	if !r.cfg.DisableHello {
		r.helloTimer = r.clock.AfterFunc(r.helloJitter(), r.onHello)
		r.neighborTimer = r.clock.AfterFunc(r.cfg.HelloInterval, r.onNeighborPurge)
	}
}

func (r *Router) stopTimers() {
	for _, t := range []state.Timer{r.bcastTimer, r.purgeTimer, r.helloTimer, r.neighborTimer} {
		if t != nil {
			t.Stop()
		}
	}
}

// helloJitter spreads hellos over 0.75 to 1.25 of the interval
func (r *Router) helloJitter() time.Duration {
	f := 0.75 + 0.5*r.rand.Float64()
	return time.Duration(float64(r.cfg.HelloInterval) * f)
}

func (r *Router) onBroadcastPurge() {
	if r.closed {
		return
	}
	r.bcache.Purge(r.clock.Now())
	r.bcastTimer.Reset(r.cfg.BroadcastIdSave)
}

func (r *Router) onRoutePurge() {
	if r.closed {
		return
	}
	for _, e := range r.table.Purge(r.clock.Now()) {
		if t, ok := r.repairing[e.Destination]; ok {
			t.Stop()
			delete(r.repairing, e.Destination)
		}
		r.Log(RouteExpired, "route expired", "route", e)
	}
	r.purgeTimer.Reset(r.cfg.PurgeFrequency)
}

func (r *Router) onHello() {
	if r.closed {
		return
	}
	// every firing sends, so the gap between two hellos never exceeds 1.25 intervals
	r.sendHello()
	r.helloTimer.Reset(r.helloJitter())
}

func (r *Router) sendHello() {
	for _, iface := range r.ifaces {
		hello := &protocol.RouteReply{
			HopCount:    0,
			Destination: iface.Local,
			DestSeqno:   r.seqNo,
			Originator:  iface.Local,
			Lifetime:    r.cfg.NeighborTimeout(),
		}
		r.sendBroadcast(hello, iface)
	}
	r.Log(HelloSent, "hello", "seqno", r.seqNo)
}

func (r *Router) onNeighborPurge() {
	if r.closed {
		return
	}
	for _, lost := range r.neighbors.Expired(r.clock.Now()) {
		r.Log(NeighborLost, "neighbor timed out", "neighbor", lost)
		r.HandleLinkFailure(lost)
	}
	r.neighborTimer.Reset(r.cfg.HelloInterval)
}
