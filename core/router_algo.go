package core

// This file makes references to RFC 3561:
// https://datatracker.ietf.org/doc/html/rfc3561

import (
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/aodv/perf"
	"github.com/encodeous/aodv/protocol"
	"github.com/encodeous/aodv/state"
)

// updateNeighbor records that sender is reachable in one hop through iface
func (r *Router) updateNeighbor(sender netip.Addr, iface state.Interface) {
	now := r.clock.Now()
	lifetime := now.Add(r.cfg.ActiveRouteTimeout)
	e, ok := r.table.Lookup(sender)
	if !ok {
		r.addRoute(state.RouteEntry{
			Destination: sender,
			ValidSeqno:  false,
			Hops:        1,
			NextHop:     sender,
			Iface:       iface,
			Lifetime:    lifetime,
			Flag:        state.RouteUp,
		})
	} else if e.ValidSeqno && e.Hops == 1 && e.NextHop == sender && e.Iface.Index == iface.Index {
		e.Flag = state.RouteUp
		e.Lifetime = maxTime(e.Lifetime, lifetime)
		r.updateRoute(e)
	} else {
		// the sequence number is kept, but it no longer describes a route through this neighbour
		e.ValidSeqno = false
		e.Hops = 1
		e.NextHop = sender
		e.Iface = iface
		e.Flag = state.RouteUp
		e.Lifetime = maxTime(e.Lifetime, lifetime)
		r.updateRoute(e)
	}
	r.neighbors.Update(sender, now.Add(r.cfg.NeighborTimeout()))
}

func (r *Router) recvRequest(req *protocol.RouteRequest, sender netip.Addr, iface state.Interface) {
	now := r.clock.Now()
	if r.isLocal(req.Originator) {
		r.updateNeighbor(sender, iface)
		r.Log(OwnRequest, "ignoring own request", "id", req.RequestId)
		return
	}
	// 6.5. Processing and Forwarding Route Requests
	if r.bcache.Contains(req.Originator, req.RequestId, now) {
		if sender == req.Originator {
			// the route to the originator is the reverse route, a duplicate leaves it alone
			r.neighbors.Update(sender, now.Add(r.cfg.NeighborTimeout()))
		} else {
			r.updateNeighbor(sender, iface)
		}
		r.Log(DuplicateRequest, "duplicate request", "orig", req.Originator, "id", req.RequestId)
		return
	}
	r.bcache.Insert(req.Originator, req.RequestId, now)
	r.updateNeighbor(sender, iface)

	if req.HopCount == 255 {
		r.Log(HopLimitReached, "hop count overflow", "req", req)
		return
	}
	hops := req.HopCount + 1

	// reverse route towards the originator
	minimal := now.Add(2*r.cfg.NetTraversalTime() - 2*time.Duration(hops)*r.cfg.NodeTraversalTime)
	rev, ok := r.table.Lookup(req.Originator)
	if !ok {
		rev = state.RouteEntry{
			Destination: req.Originator,
			ValidSeqno:  true,
			Seqno:       req.OriginSeqno,
			Hops:        hops,
			NextHop:     sender,
			Iface:       iface,
			Lifetime:    minimal,
			Flag:        state.RouteUp,
		}
		r.addRoute(rev)
	} else {
		if state.SeqnoGt(req.OriginSeqno, rev.Seqno) {
			rev.Seqno = req.OriginSeqno
		}
		rev.ValidSeqno = true
		rev.NextHop = sender
		rev.Hops = hops
		rev.Iface = iface
		rev.Flag = state.RouteUp
		rev.Lifetime = maxTime(rev.Lifetime, minimal)
		r.updateRoute(rev)
	}

	// 6.6. Generating Route Replies
	if _, ok := r.localIface(req.Destination); ok {
		r.replyAsDestination(req, rev)
		return
	}
	toDst, haveDst := r.table.Lookup(req.Destination)
	if haveDst && !req.DestinationOnly && toDst.ValidSeqno && toDst.IsUsable(now) &&
		(req.UnknownSeqno || state.SeqnoGe(toDst.Seqno, req.DestSeqno)) {
		r.replyAsIntermediate(req, toDst, rev)
		return
	}

	fwd := *req
	fwd.HopCount = hops
	if haveDst && toDst.ValidSeqno && (req.UnknownSeqno || state.SeqnoLt(req.DestSeqno, toDst.Seqno)) {
		fwd.DestSeqno = toDst.Seqno
		fwd.UnknownSeqno = false
	}
	if hops >= r.cfg.NetDiameter {
		r.Log(HopLimitReached, "not forwarding request", "orig", req.Originator, "dst", req.Destination, "hops", hops)
		return
	}
	r.Log(RequestForwarded, "forwarding request", "req", &fwd)
	r.broadcastAll(&fwd)
}

// replyAsDestination answers a request addressed to one of our interfaces
func (r *Router) replyAsDestination(req *protocol.RouteRequest, rev state.RouteEntry) {
	// 6.6.1: the sequence number only moves when the originator asks for exactly the next one
	if !req.UnknownSeqno && req.DestSeqno == r.seqNo+1 {
		r.seqNo++
	}
	rep := &protocol.RouteReply{
		HopCount:    0,
		Destination: req.Destination,
		DestSeqno:   r.seqNo,
		Originator:  req.Originator,
		Lifetime:    r.cfg.MyRouteTimeout,
	}
	r.Log(ReplySent, "replying as destination", "rep", rep, "nh", rev.NextHop)
	r.sendUnicast(rep, rev.NextHop, rev.Iface)
}

// replyAsIntermediate answers on behalf of the destination using a fresh enough route
func (r *Router) replyAsIntermediate(req *protocol.RouteRequest, toDst, rev state.RouteEntry) {
	now := r.clock.Now()
	// 6.6.2: both directions learn who forwards through us
	r.addPrecursor(toDst.Destination, rev.NextHop)
	r.addPrecursor(rev.Destination, toDst.NextHop)

	rep := &protocol.RouteReply{
		HopCount:    toDst.Hops,
		Destination: req.Destination,
		DestSeqno:   toDst.Seqno,
		Originator:  req.Originator,
		Lifetime:    toDst.Lifetime.Sub(now),
	}
	r.Log(ReplySent, "replying as intermediate", "rep", rep, "nh", rev.NextHop)
	r.sendUnicast(rep, rev.NextHop, rev.Iface)

	if req.Gratuitous {
		// 6.6.3: tell the destination about the originator
		grat := &protocol.RouteReply{
			HopCount:    rev.Hops,
			Destination: req.Originator,
			DestSeqno:   req.OriginSeqno,
			Originator:  req.Destination,
			Lifetime:    rev.Lifetime.Sub(now),
		}
		r.Log(GratuitousReplySent, "gratuitous reply", "rep", grat, "nh", toDst.NextHop)
		r.sendUnicast(grat, toDst.NextHop, toDst.Iface)
	}
}

func (r *Router) recvReply(rep *protocol.RouteReply, sender netip.Addr, iface state.Interface) {
	if rep.IsHello() {
		r.recvHello(rep, sender, iface)
		return
	}
	if r.isLocal(rep.Destination) {
		r.Log(StaleReply, "reply about ourselves", "rep", rep)
		return
	}
	if rep.HopCount == 255 {
		r.Log(HopLimitReached, "hop count overflow", "rep", rep)
		return
	}
	now := r.clock.Now()
	hops := rep.HopCount + 1

	// 6.7. Receiving and Forwarding Route Replies
	fresh := state.RouteEntry{
		Destination: rep.Destination,
		ValidSeqno:  true,
		Seqno:       rep.DestSeqno,
		Hops:        hops,
		NextHop:     sender,
		Iface:       iface,
		Lifetime:    now.Add(rep.Lifetime),
		Flag:        state.RouteUp,
	}
	toDst, ok := r.table.Lookup(rep.Destination)
	switch {
	case !ok:
		r.addRoute(fresh)
	case !toDst.ValidSeqno,
		state.SeqnoGt(rep.DestSeqno, toDst.Seqno),
		rep.DestSeqno == toDst.Seqno && !toDst.IsUsable(now),
		rep.DestSeqno == toDst.Seqno && hops < toDst.Hops:
		r.updateRoute(fresh)
	default:
		r.Log(StaleReply, "reply does not improve route", "rep", rep, "route", toDst)
	}

	if rep.AckRequired {
		r.sendUnicast(&protocol.RouteReplyAck{}, sender, iface)
	}

	if r.isLocal(rep.Originator) {
		r.discoveryComplete(rep.Destination)
		return
	}

	rev, ok := r.table.Lookup(rep.Originator)
	if !ok {
		r.Log(ReverseRouteMissing, "dropping reply", "rep", rep)
		return
	}
	toDst, _ = r.table.Lookup(rep.Destination)
	r.addPrecursor(toDst.Destination, rev.NextHop)
	r.addPrecursor(toDst.NextHop, rev.NextHop)
	r.addPrecursor(rev.Destination, toDst.NextHop)

	rev, _ = r.table.Lookup(rep.Originator)
	rev.Lifetime = maxTime(rev.Lifetime, now.Add(r.cfg.ActiveRouteTimeout))
	r.updateRoute(rev)

	fwd := *rep
	fwd.HopCount = hops
	r.Log(ReplyForwarded, "forwarding reply", "rep", &fwd, "nh", rev.NextHop)
	r.sendUnicast(&fwd, rev.NextHop, rev.Iface)
}

// recvHello refreshes the route to a neighbour that announced itself, hellos are never relayed
func (r *Router) recvHello(rep *protocol.RouteReply, sender netip.Addr, iface state.Interface) {
	now := r.clock.Now()
	if rep.Destination != sender {
		r.Log(StaleReply, "hello from relayed address", "rep", rep, "sender", sender)
		return
	}
	// 6.9. Hello Messages
	lifetime := now.Add(r.cfg.NeighborTimeout())
	e, ok := r.table.Lookup(sender)
	if !ok {
		r.addRoute(state.RouteEntry{
			Destination: sender,
			ValidSeqno:  true,
			Seqno:       rep.DestSeqno,
			Hops:        1,
			NextHop:     sender,
			Iface:       iface,
			Lifetime:    lifetime,
			Flag:        state.RouteUp,
		})
	} else {
		if !e.ValidSeqno || state.SeqnoGt(rep.DestSeqno, e.Seqno) {
			e.Seqno = rep.DestSeqno
		}
		e.ValidSeqno = true
		e.Hops = 1
		e.NextHop = sender
		e.Iface = iface
		e.Flag = state.RouteUp
		e.Lifetime = maxTime(e.Lifetime, lifetime)
		r.updateRoute(e)
	}
	r.neighbors.Update(sender, lifetime)
	r.Log(HelloReceived, "hello", "from", sender, "seqno", rep.DestSeqno)
}

func (r *Router) recvError(rerr *protocol.RouteError, sender netip.Addr) {
	if rerr.NoDelete {
		// the upstream node is repairing locally, keep our routes
		r.Log(RouteErrorIgnored, "route error with N flag", "from", sender, "rerr", rerr)
		return
	}
	now := r.clock.Now()
	unreachable := make([]protocol.UnreachableDest, 0)
	precursors := make([]netip.Addr, 0)
	for _, u := range rerr.Unreachable {
		e, ok := r.table.Lookup(u.Addr)
		if !ok || e.NextHop != sender || e.Flag == state.RouteDown {
			continue
		}
		if state.SeqnoGt(u.Seqno, e.Seqno) {
			e.Seqno = u.Seqno
		}
		r.invalidate(&e, now)
		unreachable = append(unreachable, protocol.UnreachableDest{Addr: e.Destination, Seqno: e.Seqno})
		precursors = appendUnique(precursors, e.Precursors...)
	}
	if len(unreachable) == 0 {
		r.Log(RouteErrorIgnored, "route error does not affect us", "from", sender, "rerr", rerr)
		return
	}
	r.sendError(unreachable, precursors)
}

// invalidate marks the route down, it is kept for DeletePeriod so its sequence number is remembered
func (r *Router) invalidate(e *state.RouteEntry, now time.Time) {
	e.ValidSeqno = false
	e.Flag = state.RouteDown
	e.Lifetime = now.Add(r.cfg.DeletePeriod)
	r.updateRoute(*e)
	r.Log(RouteInvalidated, "route invalidated", "route", *e)
}

// HandleLinkFailure reacts to the loss of a neighbour: every route through it goes
// down and is either repaired locally or reported to its precursors.
func (r *Router) HandleLinkFailure(neighbor netip.Addr) {
	if r.closed || !r.started {
		return
	}
	now := r.clock.Now()
	perf.LinkBreaks.Add(1)
	r.neighbors.Remove(neighbor)

	unreachable := make([]protocol.UnreachableDest, 0)
	precursors := make([]netip.Addr, 0)
	repaired := 0
	for _, e := range r.table.Entries() {
		if e.NextHop != neighbor || e.Flag != state.RouteUp || r.isBroadcast(e.Destination) {
			continue
		}
		// 6.11: the destination sequence number is incremented for a broken link
		if e.ValidSeqno {
			e.Seqno++
		}
		if r.canRepair(e) {
			e.ValidSeqno = false
			e.Flag = state.RouteInRepair
			e.Lifetime = now.Add(r.cfg.DeletePeriod)
			r.updateRoute(e)
			r.startRepair(e.Destination)
			repaired++
			continue
		}
		r.invalidate(&e, now)
		unreachable = append(unreachable, protocol.UnreachableDest{Addr: e.Destination, Seqno: e.Seqno})
		precursors = appendUnique(precursors, e.Precursors...)
	}
	r.table.DeletePrecursor(neighbor)
	precursors = slices.DeleteFunc(precursors, func(p netip.Addr) bool {
		return p == neighbor
	})
	r.Log(LinkBroken, "link to neighbor broken", "neighbor", neighbor, "unreachable", len(unreachable), "repairing", repaired)
	r.sendError(unreachable, precursors)
}

func (r *Router) canRepair(e state.RouteEntry) bool {
	return !r.cfg.DisableLocalRepair &&
		e.Destination != e.NextHop &&
		len(e.Precursors) > 0 &&
		e.Hops <= r.cfg.MaxRepairTtl
}

// startRepair floods a new request for dst, its own deadline decides the outcome
func (r *Router) startRepair(dst netip.Addr) {
	if _, ok := r.repairing[dst]; ok {
		return
	}
	r.repairing[dst] = r.clock.AfterFunc(r.cfg.LocalRepairTimeout(), func() {
		r.onRepairTimeout(dst)
	})
	r.Log(LocalRepairStarted, "local repair", "dst", dst)
	r.SendRequest(dst, false, false)
}

func (r *Router) onRepairTimeout(dst netip.Addr) {
	if r.closed {
		return
	}
	if _, ok := r.repairing[dst]; !ok {
		return
	}
	delete(r.repairing, dst)
	now := r.clock.Now()
	e, ok := r.table.Lookup(dst)
	if ok && e.IsUsable(now) {
		r.Log(LocalRepairComplete, "route repaired", "dst", dst, "route", e)
		return
	}
	r.Log(LocalRepairFailed, "local repair failed", "dst", dst)
	if !ok {
		return
	}
	r.invalidate(&e, now)
	r.sendError([]protocol.UnreachableDest{{Addr: e.Destination, Seqno: e.Seqno}}, e.Precursors)
}

// sendError reports unreachable destinations to the precursors that used them. A single
// precursor is told directly, otherwise the error is broadcast.
func (r *Router) sendError(unreachable []protocol.UnreachableDest, precursors []netip.Addr) {
	if len(unreachable) == 0 || len(precursors) == 0 {
		return
	}
	for len(unreachable) > 0 {
		n := min(len(unreachable), protocol.MaxUnreachable)
		rerr := &protocol.RouteError{Unreachable: unreachable[:n]}
		unreachable = unreachable[n:]
		perf.RouteErrorsSent.Add(1)
		if len(precursors) == 1 {
			if e, ok := r.table.Lookup(precursors[0]); ok && e.IsUsable(r.clock.Now()) {
				r.Log(RouteErrorSent, "unicast route error", "to", precursors[0], "rerr", rerr)
				r.sendUnicast(rerr, e.NextHop, e.Iface)
				continue
			}
		}
		r.Log(RouteErrorSent, "broadcast route error", "precursors", precursors, "rerr", rerr)
		r.broadcastAll(rerr)
	}
}

func (r *Router) addRoute(e state.RouteEntry) {
	if err := r.table.AddRoute(e); err != nil {
		r.Log(InconsistentState, "failed to add route", "route", e, "error", err)
		return
	}
	r.Log(RouteAdded, "route added", "route", e)
}

func (r *Router) updateRoute(e state.RouteEntry) {
	if err := r.table.Update(e.Destination, e); err != nil {
		r.Log(InconsistentState, "failed to update route", "route", e, "error", err)
		return
	}
	if state.DBG_log_route_table {
		r.Log(RouteUpdated, "route updated", "route", e)
	}
}

func (r *Router) addPrecursor(dst, precursor netip.Addr) {
	e, ok := r.table.Lookup(dst)
	if !ok || !precursor.IsValid() {
		return
	}
	if e.InsertPrecursor(precursor) {
		r.updateRoute(e)
	}
}

func appendUnique(dst []netip.Addr, addrs ...netip.Addr) []netip.Addr {
	for _, a := range addrs {
		if !slices.Contains(dst, a) {
			dst = append(dst, a)
		}
	}
	return dst
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
