package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/aodv/state"
)

var (
	ErrNoRoute       = errors.New("no route to host")
	ErrRouterStopped = errors.New("router stopped")
)

// Transport is the collaborator the router exchanges packets through. Send errors
// are reported back to the router only so they can be logged and counted.
type Transport interface {
	Interfaces() []state.Interface
	SendBroadcast(payload []byte, iface state.Interface) error
	SendUnicast(payload []byte, dst netip.Addr, iface state.Interface) error
	DeliverLocally(pkt []byte, iface state.Interface)
}

type RouterCfg struct {
	Protocol  state.ProtocolCfg
	Transport Transport
	Clock     state.Clock
	Log       *slog.Logger
	// Rand is used for hello jitter, a seeded source is created when nil
	Rand *rand.Rand
	// Trace, if set, observes every router event
	Trace func(event RouterEvent, desc string, args ...any)
}

type discovery struct {
	started    time.Time
	retries    int
	gratuitous bool
	destOnly   bool
	timer      state.Timer
}

// Router is one instance of the routing protocol. All methods must be called from
// the goroutine that owns the router, timer callbacks included.
type Router struct {
	cfg   state.ProtocolCfg
	tp    Transport
	clock state.Clock
	log   *slog.Logger
	trace func(event RouterEvent, desc string, args ...any)
	rand  *rand.Rand

	table     *state.RoutingTable
	bcache    *state.BroadcastIdCache
	neighbors *state.NeighborSet
	ifaces    []state.Interface

	seqNo     uint32
	requestId uint32

	pending   map[netip.Addr]*discovery
	// repairing holds the deadline of each local repair
	repairing map[netip.Addr]state.Timer

	bcastTimer    state.Timer
	helloTimer    state.Timer
	neighborTimer state.Timer
	purgeTimer    state.Timer

	started bool
	closed  bool
}

func NewRouter(cfg RouterCfg) (*Router, error) {
	if cfg.Transport == nil {
		return nil, errors.New("router requires a transport")
	}
	if cfg.Clock == nil {
		return nil, errors.New("router requires a clock")
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(cfg.Clock.Now().UnixNano()), 0))
	}
	proto := cfg.Protocol.WithDefaults()
	if err := state.ProtocolConfigValidator(&proto); err != nil {
		return nil, fmt.Errorf("invalid protocol config: %w", err)
	}
	return &Router{
		cfg:       proto,
		tp:        cfg.Transport,
		clock:     cfg.Clock,
		log:       cfg.Log,
		trace:     cfg.Trace,
		rand:      cfg.Rand,
		table:     state.NewRoutingTable(),
		bcache:    state.NewBroadcastIdCache(proto.BroadcastIdSave, proto.BroadcastCacheCapacity),
		neighbors: state.NewNeighborSet(),
		seqNo:     state.InitialSeqno,
		requestId: state.InitialRequestId,
		pending:   make(map[netip.Addr]*discovery),
		repairing: make(map[netip.Addr]state.Timer),
	}, nil
}

// Start installs the interface broadcast routes and arms the maintenance timers
func (r *Router) Start() error {
	if r.closed {
		return ErrRouterStopped
	}
	if r.started {
		return nil
	}
	r.ifaces = slices.Clone(r.tp.Interfaces())
	if len(r.ifaces) == 0 {
		return errors.New("router has no interfaces")
	}
	for _, iface := range r.ifaces {
		err := r.table.AddRoute(state.RouteEntry{
			Destination: iface.Broadcast,
			ValidSeqno:  true,
			Seqno:       0,
			Hops:        1,
			NextHop:     iface.Broadcast,
			Iface:       iface,
			Lifetime:    state.InfiniteLifetime,
			Flag:        state.RouteUp,
		})
		if err != nil && !errors.Is(err, state.ErrRouteExists) {
			return err
		}
	}
	r.started = true
	r.startTimers()
	r.log.Debug("router started", "interfaces", len(r.ifaces), "seqno", r.seqNo)
	return nil
}

// Stop cancels every timer and pending discovery, no callback runs afterwards
func (r *Router) Stop() {
	if r.closed {
		return
	}
	r.closed = true
	r.stopTimers()
	for dst, d := range r.pending {
		if d.timer != nil {
			d.timer.Stop()
		}
		delete(r.pending, dst)
	}
	for dst, t := range r.repairing {
		t.Stop()
		delete(r.repairing, dst)
	}
	r.log.Debug("router stopped")
}

func (r *Router) Log(event RouterEvent, desc string, args ...any) {
	if r.trace != nil {
		r.trace(event, desc, args...)
	}
	msg := fmt.Sprintf("%s %s", event.String(), desc)
	if event.IsWarning() {
		r.log.Warn(msg, args...)
	} else if state.DBG_log_router {
		r.log.Info(msg, args...)
	} else {
		r.log.Debug(msg, args...)
	}
}

func (r *Router) isLocal(addr netip.Addr) bool {
	for _, iface := range r.ifaces {
		if iface.Local == addr {
			return true
		}
	}
	return false
}

func (r *Router) localIface(addr netip.Addr) (state.Interface, bool) {
	for _, iface := range r.ifaces {
		if iface.Local == addr {
			return iface, true
		}
	}
	return state.Interface{}, false
}

func (r *Router) isBroadcast(addr netip.Addr) bool {
	if addr == state.LimitedBroadcast {
		return true
	}
	for _, iface := range r.ifaces {
		if iface.Broadcast == addr {
			return true
		}
	}
	return false
}

// Table exposes the routing table for inspection
func (r *Router) Table() *state.RoutingTable {
	return r.table
}

func (r *Router) Config() state.ProtocolCfg {
	return r.cfg
}

func (r *Router) Interfaces() []state.Interface {
	return slices.Clone(r.ifaces)
}

type RouterSnapshot struct {
	Time      time.Time
	Seqno     uint32
	RequestId uint32
	Routes    []state.RouteEntry
	Neighbors []netip.Addr
	Pending   []netip.Addr
	Repairing []netip.Addr
}

func (r *Router) Snapshot() RouterSnapshot {
	snap := RouterSnapshot{
		Time:      r.clock.Now(),
		Seqno:     r.seqNo,
		RequestId: r.requestId,
		Routes:    r.table.Entries(),
		Neighbors: r.neighbors.Addrs(),
		Pending:   make([]netip.Addr, 0, len(r.pending)),
		Repairing: make([]netip.Addr, 0, len(r.repairing)),
	}
	for dst := range r.pending {
		snap.Pending = append(snap.Pending, dst)
	}
	for dst := range r.repairing {
		snap.Repairing = append(snap.Repairing, dst)
	}
	slices.SortFunc(snap.Pending, netip.Addr.Compare)
	slices.SortFunc(snap.Repairing, netip.Addr.Compare)
	return snap
}

// Print dumps the routing table
func (r *Router) Print(w io.Writer) {
	r.table.Print(w, r.clock.Now())
}
