package core

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/aodv/perf"
	"github.com/encodeous/aodv/protocol"
	"github.com/encodeous/aodv/state"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Route is the forwarding decision for a destination
type Route struct {
	Destination netip.Addr
	NextHop     netip.Addr
	Iface       state.Interface
	Hops        uint8
}

func (r Route) String() string {
	return fmt.Sprintf("%s via %s dev %s (%d hops)", r.Destination, r.NextHop, r.Iface.Name, r.Hops)
}

type InputAction int

const (
	Unhandled InputAction = iota
	LocalDeliver
	Forward
)

func (a InputAction) String() string {
	switch a {
	case LocalDeliver:
		return "LocalDeliver"
	case Forward:
		return "Forward"
	default:
		return "Unhandled"
	}
}

type InputDecision struct {
	Action InputAction
	Route  Route
}

func routeFrom(e state.RouteEntry) Route {
	return Route{
		Destination: e.Destination,
		NextHop:     e.NextHop,
		Iface:       e.Iface,
		Hops:        e.Hops,
	}
}

// RouteOutput returns the route for locally originated traffic to dst. When no usable
// route exists a discovery is started and ErrNoRoute is returned, the caller is
// expected to queue the packet and retry.
func (r *Router) RouteOutput(dst netip.Addr) (Route, error) {
	if r.closed || !r.started {
		return Route{}, ErrRouterStopped
	}
	if dst == state.LimitedBroadcast {
		return Route{Destination: dst, NextHop: dst, Iface: r.ifaces[0], Hops: 1}, nil
	}
	if iface, ok := r.localIface(dst); ok {
		return Route{Destination: dst, NextHop: dst, Iface: iface}, nil
	}
	now := r.clock.Now()
	if e, ok := r.table.Lookup(dst); ok && e.IsUsable(now) {
		r.refreshActive(e)
		return routeFrom(e), nil
	}
	r.SendRequest(dst, r.cfg.GratuitousReply, false)
	return Route{}, fmt.Errorf("%w: %s", ErrNoRoute, dst)
}

// RouteInput decides what to do with an IPv4 packet received on iface
func (r *Router) RouteInput(pkt []byte, iface state.Interface) InputDecision {
	if r.closed || !r.started {
		return InputDecision{Action: Unhandled}
	}
	var (
		ip4     layers.IPv4
		udp     layers.UDP
		payload gopacket.Payload
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, &ip4, &udp, &payload)
	parser.IgnoreUnsupported = true
	decoded := make([]gopacket.LayerType, 0, 3)
	if err := parser.DecodeLayers(pkt, &decoded); err != nil || len(decoded) == 0 {
		r.Log(MalformedMessage, "undecodable packet", "iface", iface.Name, "error", err)
		return InputDecision{Action: Unhandled}
	}
	src, _ := netip.AddrFromSlice(ip4.SrcIP.To4())
	dst, _ := netip.AddrFromSlice(ip4.DstIP.To4())

	// control traffic is always consumed by this node
	for _, lt := range decoded {
		if lt == layers.LayerTypeUDP && udp.SrcPort == state.Port && udp.DstPort == state.Port {
			r.tp.DeliverLocally(pkt, iface)
			return InputDecision{Action: LocalDeliver, Route: Route{Destination: iface.Local, NextHop: iface.Local, Iface: iface}}
		}
	}

	if r.isLocal(dst) || r.isBroadcast(dst) || dst.IsMulticast() {
		r.tp.DeliverLocally(pkt, iface)
		return InputDecision{Action: LocalDeliver, Route: Route{Destination: dst, NextHop: dst, Iface: iface}}
	}

	now := r.clock.Now()
	e, ok := r.table.Lookup(dst)
	if !ok || !e.IsUsable(now) {
		r.Log(NoRouteForData, "no route for forwarded packet", "src", src, "dst", dst)
		return InputDecision{Action: Unhandled}
	}
	// 6.2: forwarding keeps both the forward and the reverse path alive
	r.refreshActive(e)
	if back, ok := r.table.Lookup(src); ok && back.IsUsable(now) {
		r.refreshActive(back)
	}
	return InputDecision{Action: Forward, Route: routeFrom(e)}
}

// refreshActive extends the lifetime of a route in use and of the route to its next hop
func (r *Router) refreshActive(e state.RouteEntry) {
	active := r.clock.Now().Add(r.cfg.ActiveRouteTimeout)
	if e.Lifetime.Before(active) {
		e.Lifetime = active
		r.updateRoute(e)
	}
	if e.NextHop == e.Destination || r.isBroadcast(e.NextHop) {
		return
	}
	if nh, ok := r.table.Lookup(e.NextHop); ok && nh.Flag == state.RouteUp && nh.Lifetime.Before(active) {
		nh.Lifetime = active
		r.updateRoute(nh)
	}
}

// SendRequest starts a route discovery for dst. A discovery already in flight for
// dst is not duplicated.
func (r *Router) SendRequest(dst netip.Addr, gratuitous, destOnly bool) {
	if r.closed || !r.started {
		return
	}
	if _, ok := r.pending[dst]; ok {
		r.Log(DiscoveryInFlight, "discovery already running", "dst", dst)
		return
	}
	d := &discovery{
		started:    r.clock.Now(),
		gratuitous: gratuitous,
		destOnly:   destOnly,
	}
	r.pending[dst] = d
	r.Log(DiscoveryStarted, "route discovery", "dst", dst)
	r.floodRequest(dst, d)
	d.timer = r.clock.AfterFunc(r.cfg.NetTraversalTime(), func() {
		r.onDiscoveryTimeout(dst)
	})
}

func (r *Router) floodRequest(dst netip.Addr, d *discovery) {
	now := r.clock.Now()
	// 6.3: a node increments its own sequence number before originating a request
	r.seqNo++
	r.requestId++
	req := protocol.RouteRequest{
		Gratuitous:      d.gratuitous,
		DestinationOnly: d.destOnly,
		HopCount:        0,
		RequestId:       r.requestId,
		Destination:     dst,
		OriginSeqno:     r.seqNo,
		UnknownSeqno:    true,
	}
	if e, ok := r.table.Lookup(dst); ok && (e.ValidSeqno || e.Seqno != 0) {
		req.DestSeqno = e.Seqno
		req.UnknownSeqno = false
	}
	for _, iface := range r.ifaces {
		msg := req
		msg.Originator = iface.Local
		r.bcache.Insert(iface.Local, req.RequestId, now)
		r.sendBroadcast(&msg, iface)
	}
}

func (r *Router) onDiscoveryTimeout(dst netip.Addr) {
	if r.closed {
		return
	}
	d, ok := r.pending[dst]
	if !ok {
		return
	}
	if e, ok := r.table.Lookup(dst); ok && e.IsUsable(r.clock.Now()) {
		r.discoveryComplete(dst)
		return
	}
	if d.retries >= max(r.cfg.RreqRetries, 0) {
		delete(r.pending, dst)
		perf.DiscoveryFailures.Add(1)
		r.Log(DiscoveryFailed, "no route found", "dst", dst, "attempts", d.retries+1)
		return
	}
	d.retries++
	r.Log(DiscoveryRetried, "retrying discovery", "dst", dst, "attempt", d.retries+1)
	r.floodRequest(dst, d)
	// binary exponential backoff
	d.timer.Reset(r.cfg.NetTraversalTime() << d.retries)
}

func (r *Router) discoveryComplete(dst netip.Addr) {
	d, ok := r.pending[dst]
	if !ok {
		return
	}
	delete(r.pending, dst)
	if d.timer != nil {
		d.timer.Stop()
	}
	elapsed := r.clock.Now().Sub(d.started)
	perf.DiscoveryLatency.Add(float64(elapsed.Milliseconds()))
	r.Log(DiscoveryComplete, "route found", "dst", dst, "elapsed", elapsed)
}
