//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"runtime/pprof"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/aodv/core"
	"github.com/encodeous/aodv/impl"
	"github.com/encodeous/aodv/state"
)

var errClosed = errors.New("transport closed")

type VirtualLink struct {
	Edge       state.Pair[state.NodeId, state.NodeId]
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
	down       atomic.Bool
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

func (v *VirtualLink) SetDown(down bool) {
	v.down.Store(down)
}

type packet struct {
	payload []byte
	sender  netip.Addr
}

// InMemoryNetwork is a radio network shared by every node of the harness
type InMemoryNetwork struct {
	sync.Mutex
	ctx   context.Context
	nodes map[state.NodeId]*virtualTransport
	addrs map[netip.Addr]state.NodeId
	links []*VirtualLink
	wg    sync.WaitGroup
}

func (i *InMemoryNetwork) link(a, b state.NodeId) *VirtualLink {
	edge := state.MakeSortedPair(a, b)
	idx := slices.IndexFunc(i.links, func(l *VirtualLink) bool {
		return l.Edge == edge
	})
	if idx == -1 {
		return nil
	}
	return i.links[idx]
}

// simulate carries pkt over the link, it never blocks the sender
func (i *InMemoryNetwork) simulate(pkt packet, from state.NodeId, to *virtualTransport) bool {
	v := i.link(from, to.id)
	if v == nil || v.down.Load() {
		return false
	}
	if rand.Float64() < v.PacketLoss {
		return true
	}
	lat := v.Latency
	if v.Jitter > 0 {
		lat += time.Duration(rand.Int64N(int64(v.Jitter)))
	}
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		select {
		case <-i.ctx.Done():
		case <-time.After(lat):
			to.enqueue(pkt)
		}
	}()
	return true
}

func (i *InMemoryNetwork) Transport(node state.NodeId) (core.PacketTransport, error) {
	i.Lock()
	defer i.Unlock()
	t, ok := i.nodes[node]
	if !ok {
		return nil, fmt.Errorf("node %s is not part of the network", node)
	}
	return t, nil
}

type virtualTransport struct {
	net     *InMemoryNetwork
	id      state.NodeId
	iface   state.Interface
	inbound chan packet
	closed  atomic.Bool
}

func (t *virtualTransport) enqueue(pkt packet) {
	if t.closed.Load() {
		return
	}
	select {
	case t.inbound <- pkt:
	default:
		// queue overflow behaves like a collision
	}
}

func (t *virtualTransport) Interfaces() []state.Interface {
	return []state.Interface{t.iface}
}

func (t *virtualTransport) neighbours() []*virtualTransport {
	t.net.Lock()
	defer t.net.Unlock()
	out := make([]*virtualTransport, 0)
	for id, other := range t.net.nodes {
		if id != t.id {
			out = append(out, other)
		}
	}
	return out
}

func (t *virtualTransport) SendBroadcast(payload []byte, iface state.Interface) error {
	if t.closed.Load() {
		return errClosed
	}
	for _, n := range t.neighbours() {
		t.net.simulate(packet{payload: slices.Clone(payload), sender: t.iface.Local}, t.id, n)
	}
	return nil
}

func (t *virtualTransport) SendUnicast(payload []byte, dst netip.Addr, iface state.Interface) error {
	if t.closed.Load() {
		return errClosed
	}
	t.net.Lock()
	id, ok := t.net.addrs[dst]
	to := t.net.nodes[id]
	t.net.Unlock()
	if !ok || !t.net.simulate(packet{payload: slices.Clone(payload), sender: t.iface.Local}, t.id, to) {
		return fmt.Errorf("%s is not reachable from %s", dst, t.id)
	}
	return nil
}

func (t *virtualTransport) DeliverLocally(pkt []byte, iface state.Interface) {}

func (t *virtualTransport) Start(ctx context.Context, handler impl.PacketHandler) error {
	t.net.wg.Add(1)
	go func() {
		defer t.net.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case pkt := <-t.inbound:
				handler(pkt.payload, pkt.sender, t.iface)
			}
		}
	}()
	return nil
}

func (t *virtualTransport) Close() error {
	t.closed.Store(true)
	return nil
}

type VirtualHarness struct {
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Local    []state.LocalCfg
	Protocol state.ProtocolCfg
	Net      *InMemoryNetwork
	States   []*state.State
	wg       sync.WaitGroup
}

func NewHarness() *VirtualHarness {
	ctx, cancel := context.WithCancelCause(context.Background())
	cfg := state.DefaultProtocolCfg()
	return &VirtualHarness{
		Context:  ctx,
		Cancel:   cancel,
		Protocol: cfg,
		Net: &InMemoryNetwork{
			ctx:   ctx,
			nodes: make(map[state.NodeId]*virtualTransport),
			addrs: make(map[netip.Addr]state.NodeId),
		},
	}
}

func (v *VirtualHarness) IndexOf(id state.NodeId) int {
	return slices.IndexFunc(v.Local, func(cfg state.LocalCfg) bool {
		return cfg.Id == id
	})
}

func (v *VirtualHarness) NewNode(id state.NodeId, addr string) {
	icfg := state.InterfaceCfg{Name: "vnet0", Address: netip.MustParsePrefix(addr)}
	v.Local = append(v.Local, state.LocalCfg{
		Id:         id,
		Port:       state.Port,
		Interfaces: []state.InterfaceCfg{icfg},
		Protocol:   v.Protocol,
	})
	iface := icfg.ToInterface(1)
	v.Net.nodes[id] = &virtualTransport{
		net:     v.Net,
		id:      id,
		iface:   iface,
		inbound: make(chan packet, 256),
	}
	v.Net.addrs[iface.Local] = id
}

func (v *VirtualHarness) AddLink(a, b state.NodeId) *VirtualLink {
	link := &VirtualLink{Edge: state.MakeSortedPair(a, b)}
	link.WithLatency(time.Millisecond, time.Millisecond)
	v.Net.links = append(v.Net.links, link)
	return link
}

func (v *VirtualHarness) Link(a, b state.NodeId) *VirtualLink {
	return v.Net.link(a, b)
}

func (v *VirtualHarness) Start() error {
	v.States = make([]*state.State, len(v.Local))
	errChan := make(chan error, len(v.Local))
	for idx, cfg := range v.Local {
		if err := state.NodeConfigValidator(&cfg); err != nil {
			return err
		}
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			labels := pprof.Labels("aodv node", string(cfg.Id))
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				err := core.Start(cfg, slog.LevelDebug, map[string]any{
					"vnet": v.Net,
				}, &v.States[idx])
				if err != nil {
					errChan <- err
				}
			})
		}()
	}
	// wait for all nodes to start
	for {
		started := true
		for idx := range v.Local {
			if v.States[idx] == nil || !v.States[idx].Started.Load() {
				started = false
				break
			}
		}
		if started {
			return nil
		}
		select {
		case err := <-errChan:
			return err
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (v *VirtualHarness) Stop() {
	cause := errors.New("stopping harness")
	v.Cancel(cause)
	for _, s := range v.States {
		if s != nil {
			s.Cancel(cause)
		}
	}
	v.wg.Wait()
	v.Net.wg.Wait()
}

// Do runs f on the node's dispatch goroutine
func (v *VirtualHarness) Do(id state.NodeId, f func(r *core.Router) any) (any, error) {
	s := v.States[v.IndexOf(id)]
	return s.DispatchWait(func(s *state.State) (any, error) {
		return f(core.Get[*core.AodvNode](s).Router), nil
	})
}

func (v *VirtualHarness) Lookup(id state.NodeId, dst netip.Addr) (state.RouteEntry, bool) {
	res, err := v.Do(id, func(r *core.Router) any {
		e, ok := r.Table().Lookup(dst)
		if !ok || !e.IsUsable(time.Now()) {
			return nil
		}
		return e
	})
	if err != nil || res == nil {
		return state.RouteEntry{}, false
	}
	return res.(state.RouteEntry), true
}

func (v *VirtualHarness) Addr(id state.NodeId) netip.Addr {
	return v.Net.nodes[id].iface.Local
}
