package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/aodv/protocol"
	"github.com/encodeous/aodv/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gopacket/gopacket/layers"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	addrA = netip.MustParseAddr("10.0.0.1")
	addrB = netip.MustParseAddr("10.0.0.2")
	addrC = netip.MustParseAddr("10.0.0.3")
	addrD = netip.MustParseAddr("10.0.0.4")
	bcast = netip.MustParseAddr("10.0.0.255")
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness is a Transport that records everything the router does
type RouterHarness struct {
	ifaces  []state.Interface
	actions []HarnessEvent
}

func NewRouterHarness(ifaces ...state.Interface) *RouterHarness {
	return &RouterHarness{ifaces: ifaces}
}

func (h *RouterHarness) Interfaces() []state.Interface {
	return h.ifaces
}

func (h *RouterHarness) SendBroadcast(payload []byte, iface state.Interface) error {
	msg, err := decodeStripped(payload)
	if err != nil {
		return err
	}
	h.actions = append(h.actions, MakeEvent("BROADCAST", iface.Name, msg))
	return nil
}

func (h *RouterHarness) SendUnicast(payload []byte, dst netip.Addr, iface state.Interface) error {
	msg, err := decodeStripped(payload)
	if err != nil {
		return err
	}
	h.actions = append(h.actions, MakeEvent("UNICAST", dst, msg))
	return nil
}

func (h *RouterHarness) DeliverLocally(pkt []byte, iface state.Interface) {
	h.actions = append(h.actions, MakeEvent("DELIVER", iface.Name, len(pkt)))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

// decodeStripped decodes payload and drops the raw bytes so messages compare by field
func decodeStripped(payload []byte) (protocol.Message, error) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case *protocol.RouteRequest:
		m.BaseLayer = layers.BaseLayer{}
	case *protocol.RouteReply:
		m.BaseLayer = layers.BaseLayer{}
	case *protocol.RouteError:
		m.BaseLayer = layers.BaseLayer{}
	case *protocol.RouteReplyAck:
		m.BaseLayer = layers.BaseLayer{}
	}
	return msg, nil
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns the packets sent since the last call, log events are dropped
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}

	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetAll returns everything recorded since the last call, log events included
func (h *RouterHarness) GetAll() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg, cmpopts.EquateComparable(netip.Addr{}, netip.Prefix{})) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false

}

func (e HarnessEvents) Count(msg string) int {
	n := 0
	for _, event := range e {
		if event.Message == msg {
			n++
		}
	}
	return n
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// Messages returns the control messages of type T carried by send events
func Messages[T protocol.Message](e HarnessEvents) []T {
	out := make([]T, 0)
	for _, event := range e {
		if event.Message != "BROADCAST" && event.Message != "UNICAST" {
			continue
		}
		if m, ok := event.Args[1].(T); ok {
			out = append(out, m)
		}
	}
	return out
}

func testIface(addr netip.Addr) state.Interface {
	return state.InterfaceCfg{
		Name:    "wlan0",
		Address: netip.PrefixFrom(addr, 24),
	}.ToInterface(1)
}

func testProtocol() state.ProtocolCfg {
	cfg := state.DefaultProtocolCfg()
	cfg.DisableHello = true
	return cfg
}

// newTestRouter starts a router on a single 10.0.0.0/24 interface driven by a virtual clock
func newTestRouter(t *testing.T, local netip.Addr, cfg state.ProtocolCfg) (*Router, *RouterHarness, *state.VirtualClock) {
	t.Helper()
	h := NewRouterHarness(testIface(local))
	clock := state.NewVirtualClock(epoch)
	r, err := NewRouter(RouterCfg{
		Protocol:  cfg,
		Transport: h,
		Clock:     clock,
		Trace:     h.Log,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err = r.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Stop)
	return r, h, clock
}

func encode(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	b, err := protocol.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// deliver hands msg to the router as if it was received from sender
func deliver(t *testing.T, r *Router, msg protocol.Message, sender netip.Addr) {
	t.Helper()
	r.HandlePacket(encode(t, msg), sender, r.ifaces[0])
}
