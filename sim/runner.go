package sim

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/encodeous/aodv/state"
)

// DefaultDuration is used when the config does not say how long to run
const DefaultDuration = 30 * time.Second

type Result struct {
	Elapsed time.Duration
	Stats   Stats
	Network *InMemoryNetwork
}

// Run executes the scripted simulation described by cfg on a virtual clock. Routing
// tables are written to out for every dump event and once at the end.
func Run(simCfg *state.SimCfg, log *slog.Logger, out io.Writer) (*Result, error) {
	cfg := *simCfg
	cfg.Protocol = cfg.Protocol.WithDefaults()
	if err := state.SimConfigValidator(&cfg); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := state.NewVirtualClock(time.Unix(0, 0).UTC())
	n, err := NewNetworkFromCfg(&cfg, clock, log)
	if err != nil {
		return nil, err
	}
	if err = n.Start(); err != nil {
		return nil, err
	}
	defer n.Stop()

	var runErr error
	for _, ev := range cfg.Events {
		clock.AfterFunc(ev.At, func() {
			if err := n.apply(ev, out); err != nil && runErr == nil {
				runErr = fmt.Errorf("event %s at %s: %w", ev.Kind, ev.At, err)
			}
		})
	}

	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	clock.RunFor(duration)
	if runErr != nil {
		return nil, runErr
	}

	n.Dump(out, "")
	log.Info("simulation finished", "elapsed", n.Elapsed(),
		"data_sent", n.Stats.DataSent, "data_delivered", n.Stats.DataDelivered,
		"data_dropped", n.Stats.DataDropped, "control_frames", n.Stats.ControlFrames)
	return &Result{
		Elapsed: n.Elapsed(),
		Stats:   n.Stats,
		Network: n,
	}, nil
}

func (n *InMemoryNetwork) apply(ev state.SimEvent, out io.Writer) error {
	switch ev.Kind {
	case state.SimSend:
		from, ok := n.Node(ev.From)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, ev.From)
		}
		to, ok := n.Node(ev.To)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, ev.To)
		}
		return from.SendData(to.Iface.Local, fmt.Sprintf("%s->%s@%s", ev.From, ev.To, ev.At))
	case state.SimLinkDown:
		return n.SetLink(ev.From, ev.To, false)
	case state.SimLinkUp:
		return n.SetLink(ev.From, ev.To, true)
	case state.SimDump:
		n.Dump(out, ev.From)
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// Dump prints the routing table of node id, or of every node when id is empty
func (n *InMemoryNetwork) Dump(out io.Writer, id state.NodeId) {
	if out == nil {
		return
	}
	elapsed := n.Elapsed()
	for _, node := range n.nodes {
		if id != "" && node.Id != id {
			continue
		}
		_, _ = fmt.Fprintf(out, "# %s (%s) at %s\n", node.Id, node.Iface.Local, elapsed)
		node.Router.Print(out)
	}
}

// ExampleCfg is a small network with two paths between a and e. The shorter one breaks
// after the first packet and heals later.
func ExampleCfg() *state.SimCfg {
	nodes := []state.SimNodeCfg{
		{Id: "a", Address: netip.MustParsePrefix("10.42.0.1/24")},
		{Id: "b", Address: netip.MustParsePrefix("10.42.0.2/24")},
		{Id: "c", Address: netip.MustParsePrefix("10.42.0.3/24")},
		{Id: "d", Address: netip.MustParsePrefix("10.42.0.4/24")},
		{Id: "e", Address: netip.MustParsePrefix("10.42.0.5/24")},
	}
	return &state.SimCfg{
		Nodes: nodes,
		Graph: []string{
			"short = b",
			"a, short",
			"short, e",
			"a, c",
			"c, d",
			"d, e",
		},
		Events: []state.SimEvent{
			{At: 2 * time.Second, Kind: state.SimSend, From: "a", To: "e"},
			{At: 3 * time.Second, Kind: state.SimDump, From: "a"},
			{At: 4 * time.Second, Kind: state.SimLinkDown, From: "b", To: "e"},
			{At: 9 * time.Second, Kind: state.SimSend, From: "a", To: "e"},
			{At: 10 * time.Second, Kind: state.SimDump, From: "a"},
			{At: 15 * time.Second, Kind: state.SimLinkUp, From: "b", To: "e"},
			{At: 20 * time.Second, Kind: state.SimSend, From: "e", To: "a"},
		},
		Duration: 30 * time.Second,
		Seed:     1,
	}
}
