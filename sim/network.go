// Package sim runs many routers against an in-memory radio network on a virtual clock.
package sim

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/aodv/core"
	"github.com/encodeous/aodv/state"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

var (
	ErrNoLink      = errors.New("no link to destination")
	ErrUnknownNode = errors.New("unknown node")
)

const (
	DefaultLatency = 2 * time.Millisecond
	DefaultJitter  = time.Millisecond
	dataPort       = 9000
)

type VirtualLink struct {
	Edge       state.Pair[state.NodeId, state.NodeId]
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
	Down       bool
}

func (v *VirtualLink) WithLatency(lat, jitter time.Duration) *VirtualLink {
	v.Latency = lat
	v.Jitter = jitter
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

type Stats struct {
	ControlFrames int
	DataSent      int
	DataDelivered int
	DataDropped   int
	FramesLost    int
}

// Delivery is a data packet that reached its destination
type Delivery struct {
	At      time.Time
	From    netip.Addr
	To      state.NodeId
	Payload string
}

// InMemoryNetwork connects simulated nodes over radio links. It is not safe for
// concurrent use, everything runs from the clock's callbacks.
type InMemoryNetwork struct {
	Clock      *state.VirtualClock
	Stats      Stats
	Deliveries []Delivery

	log    *slog.Logger
	rand   *rand.Rand
	cfg    state.ProtocolCfg
	start  time.Time
	nodes  []*Node
	byId   map[state.NodeId]*Node
	byAddr map[netip.Addr]*Node
	links  map[state.Pair[state.NodeId, state.NodeId]]*VirtualLink
}

func NewNetwork(cfg state.ProtocolCfg, clock *state.VirtualClock, log *slog.Logger, seed uint64) *InMemoryNetwork {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &InMemoryNetwork{
		Clock:  clock,
		log:    log,
		rand:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		cfg:    cfg.WithDefaults(),
		start:  clock.Now(),
		byId:   make(map[state.NodeId]*Node),
		byAddr: make(map[netip.Addr]*Node),
		links:  make(map[state.Pair[state.NodeId, state.NodeId]]*VirtualLink),
	}
}

// NewNetworkFromCfg builds the nodes and links described by cfg, routers are not started yet
func NewNetworkFromCfg(cfg *state.SimCfg, clock *state.VirtualClock, log *slog.Logger) (*InMemoryNetwork, error) {
	n := NewNetwork(cfg.Protocol, clock, log, cfg.Seed)
	for _, node := range cfg.Nodes {
		if _, err := n.AddNode(node.Id, node.Address); err != nil {
			return nil, err
		}
	}
	links, err := cfg.Links()
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		link, err := n.AddLink(l.V1, l.V2)
		if err != nil {
			return nil, err
		}
		link.WithPacketLoss(cfg.Loss)
	}
	return n, nil
}

func (n *InMemoryNetwork) AddNode(id state.NodeId, addr netip.Prefix) (*Node, error) {
	if _, ok := n.byId[id]; ok {
		return nil, fmt.Errorf("node %s already exists", id)
	}
	if _, ok := n.byAddr[addr.Addr()]; ok {
		return nil, fmt.Errorf("address %s is already used", addr.Addr())
	}
	node := &Node{
		Id:    id,
		Iface: state.InterfaceCfg{Name: "sim0", Address: addr}.ToInterface(1),
		net:   n,
		log:   n.log.With("node", id),
		queue: make(map[netip.Addr][]queuedPacket),
	}
	r, err := core.NewRouter(core.RouterCfg{
		Protocol:  n.cfg,
		Transport: node,
		Clock:     n.Clock,
		Log:       node.log,
		Rand:      rand.New(rand.NewPCG(n.rand.Uint64(), n.rand.Uint64())),
		Trace:     node.onRouterEvent,
	})
	if err != nil {
		return nil, err
	}
	node.Router = r
	n.nodes = append(n.nodes, node)
	n.byId[id] = node
	n.byAddr[node.Iface.Local] = node
	return node, nil
}

func (n *InMemoryNetwork) AddLink(a, b state.NodeId) (*VirtualLink, error) {
	if _, ok := n.byId[a]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, a)
	}
	if _, ok := n.byId[b]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, b)
	}
	edge := state.MakeSortedPair(a, b)
	if link, ok := n.links[edge]; ok {
		return link, nil
	}
	link := (&VirtualLink{Edge: edge}).WithLatency(DefaultLatency, DefaultJitter)
	n.links[edge] = link
	return link, nil
}

// Elapsed is the virtual time since the network was created
func (n *InMemoryNetwork) Elapsed() time.Duration {
	return n.Clock.Now().Sub(n.start)
}

func (n *InMemoryNetwork) Link(a, b state.NodeId) (*VirtualLink, bool) {
	link, ok := n.links[state.MakeSortedPair(a, b)]
	return link, ok
}

// SetLink brings the link between a and b up or down
func (n *InMemoryNetwork) SetLink(a, b state.NodeId, up bool) error {
	link, ok := n.Link(a, b)
	if !ok {
		return fmt.Errorf("%w: %s <-> %s", ErrNoLink, a, b)
	}
	link.Down = !up
	n.log.Info("link changed", "a", a, "b", b, "up", up)
	return nil
}

func (n *InMemoryNetwork) Node(id state.NodeId) (*Node, bool) {
	node, ok := n.byId[id]
	return node, ok
}

func (n *InMemoryNetwork) Nodes() []*Node {
	return slices.Clone(n.nodes)
}

// Start starts every router
func (n *InMemoryNetwork) Start() error {
	for _, node := range n.nodes {
		if err := node.Router.Start(); err != nil {
			return fmt.Errorf("start %s: %w", node.Id, err)
		}
	}
	return nil
}

func (n *InMemoryNetwork) Stop() {
	for _, node := range n.nodes {
		node.Router.Stop()
	}
}

// neighbours returns the nodes reachable in one hop from node over links that are up
func (n *InMemoryNetwork) neighbours(node *Node) []*Node {
	out := make([]*Node, 0)
	for _, other := range n.nodes {
		if other == node {
			continue
		}
		if link, ok := n.Link(node.Id, other.Id); ok && !link.Down {
			out = append(out, other)
		}
	}
	return out
}

type frame struct {
	control bool
	payload []byte
	from    *Node
}

// transmit schedules the arrival of f at to, frames are never delivered synchronously
func (n *InMemoryNetwork) transmit(f frame, to *Node) {
	link, ok := n.Link(f.from.Id, to.Id)
	if !ok || link.Down {
		return
	}
	if n.rand.Float64() < link.PacketLoss {
		n.Stats.FramesLost++
		return
	}
	lat := link.Latency
	if link.Jitter > 0 {
		lat += time.Duration(n.rand.Int64N(int64(link.Jitter)))
	}
	payload := slices.Clone(f.payload)
	n.Clock.AfterFunc(lat, func() {
		// the link may have broken while the frame was in the air
		if link.Down {
			n.Stats.FramesLost++
			return
		}
		to.receive(frame{control: f.control, payload: payload, from: f.from})
	})
}

// Node is one simulated host, it is the router's transport
type Node struct {
	Id     state.NodeId
	Iface  state.Interface
	Router *core.Router

	net   *InMemoryNetwork
	log   *slog.Logger
	queue map[netip.Addr][]queuedPacket
	// observer sees every router event of this node
	observer func(event core.RouterEvent, desc string, args ...any)
}

type queuedPacket struct {
	at  time.Time
	pkt []byte
}

func (n *Node) OnEvent(f func(event core.RouterEvent, desc string, args ...any)) {
	n.observer = f
}

func (n *Node) onRouterEvent(event core.RouterEvent, desc string, args ...any) {
	if n.observer != nil {
		n.observer(event, desc, args...)
	}
	switch event {
	case core.DiscoveryComplete, core.DiscoveryFailed:
		n.net.Clock.AfterFunc(0, n.flush)
	}
}

func (n *Node) Interfaces() []state.Interface {
	return []state.Interface{n.Iface}
}

func (n *Node) SendBroadcast(payload []byte, iface state.Interface) error {
	for _, nb := range n.net.neighbours(n) {
		n.net.Stats.ControlFrames++
		n.net.transmit(frame{control: true, payload: payload, from: n}, nb)
	}
	return nil
}

func (n *Node) SendUnicast(payload []byte, dst netip.Addr, iface state.Interface) error {
	return n.unicast(frame{control: true, payload: payload, from: n}, dst)
}

// unicast sends f to the neighbour dst. Missing the link is reported to the router the
// way a link layer reports a failed transmission.
func (n *Node) unicast(f frame, dst netip.Addr) error {
	to, ok := n.net.byAddr[dst]
	if ok {
		if link, ok := n.net.Link(n.Id, to.Id); ok && !link.Down {
			if f.control {
				n.net.Stats.ControlFrames++
			}
			n.net.transmit(f, to)
			return nil
		}
	}
	n.net.Clock.AfterFunc(0, func() {
		n.Router.HandleLinkFailure(dst)
	})
	return fmt.Errorf("%w: %s -> %s", ErrNoLink, n.Iface.Local, dst)
}

func (n *Node) DeliverLocally(pkt []byte, iface state.Interface) {
	var (
		ip4     layers.IPv4
		udp     layers.UDP
		payload gopacket.Payload
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, &ip4, &udp, &payload)
	decoded := make([]gopacket.LayerType, 0, 3)
	if err := parser.DecodeLayers(pkt, &decoded); err != nil {
		n.log.Warn("undecodable local packet", "error", err)
		return
	}
	if udp.DstPort != dataPort {
		return
	}
	src, _ := netip.AddrFromSlice(ip4.SrcIP.To4())
	n.net.Stats.DataDelivered++
	n.net.Deliveries = append(n.net.Deliveries, Delivery{
		At:      n.net.Clock.Now(),
		From:    src,
		To:      n.Id,
		Payload: string(payload),
	})
	n.log.Info("data delivered", "from", src, "payload", string(payload))
}

func (n *Node) receive(f frame) {
	if f.control {
		n.Router.HandlePacket(f.payload, f.from.Iface.Local, n.Iface)
		return
	}
	d := n.Router.RouteInput(f.payload, n.Iface)
	switch d.Action {
	case core.Forward:
		if err := n.unicast(frame{payload: f.payload, from: n}, d.Route.NextHop); err != nil {
			n.net.Stats.DataDropped++
			n.log.Debug("forward failed", "error", err)
		}
	case core.LocalDeliver:
	default:
		n.net.Stats.DataDropped++
	}
}

// SendData originates a data packet to dst, it is queued while a route is discovered
func (n *Node) SendData(dst netip.Addr, payload string) error {
	pkt, err := buildDataPacket(n.Iface.Local, dst, payload)
	if err != nil {
		return err
	}
	n.net.Stats.DataSent++
	route, err := n.Router.RouteOutput(dst)
	if errors.Is(err, core.ErrNoRoute) {
		n.queue[dst] = append(n.queue[dst], queuedPacket{at: n.net.Clock.Now(), pkt: pkt})
		return nil
	} else if err != nil {
		n.net.Stats.DataDropped++
		return err
	}
	n.forward(pkt, route)
	return nil
}

func (n *Node) forward(pkt []byte, route core.Route) {
	if route.NextHop == n.Iface.Local {
		n.DeliverLocally(pkt, route.Iface)
		return
	}
	if err := n.unicast(frame{payload: pkt, from: n}, route.NextHop); err != nil {
		n.net.Stats.DataDropped++
		n.log.Debug("send failed", "error", err)
	}
}

// flush sends queued packets whose route has been found, packets for a destination
// the router gave up on are dropped
func (n *Node) flush() {
	now := n.net.Clock.Now()
	pending := n.Router.Snapshot().Pending
	for dst, pkts := range n.queue {
		if e, ok := n.Router.Table().Lookup(dst); ok && e.IsUsable(now) {
			delete(n.queue, dst)
			route, err := n.Router.RouteOutput(dst)
			for _, p := range pkts {
				if err != nil {
					n.net.Stats.DataDropped++
					continue
				}
				n.log.Debug("sending queued packet", "dst", dst, "waited", now.Sub(p.at))
				n.forward(p.pkt, route)
			}
			continue
		}
		if !slices.Contains(pending, dst) {
			delete(n.queue, dst)
			n.net.Stats.DataDropped += len(pkts)
			n.log.Debug("dropped queued packets", "dst", dst, "count", len(pkts))
		}
	}
}

// Queued returns the number of packets waiting for a route
func (n *Node) Queued() int {
	total := 0
	for _, pkts := range n.queue {
		total += len(pkts)
	}
	return total
}

func buildDataPacket(src, dst netip.Addr, payload string) ([]byte, error) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.AsSlice(),
		DstIP:    dst.AsSlice(),
	}
	udp := &layers.UDP{SrcPort: dataPort, DstPort: dataPort}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip, udp, gopacket.Payload(payload))
	if err != nil {
		return nil, fmt.Errorf("build packet: %w", err)
	}
	return buf.Bytes(), nil
}
