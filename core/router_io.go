package core

import (
	"net/netip"

	"github.com/encodeous/aodv/perf"
	"github.com/encodeous/aodv/protocol"
	"github.com/encodeous/aodv/state"
)

// HandlePacket processes one control message received from sender on iface
func (r *Router) HandlePacket(payload []byte, sender netip.Addr, iface state.Interface) {
	if r.closed || !r.started {
		return
	}
	if r.isLocal(sender) {
		// our own broadcast looped back
		return
	}
	msg, err := protocol.Decode(payload)
	if err != nil {
		perf.ControlDropped.Add(1)
		r.Log(MalformedMessage, "dropped control message", "from", sender, "iface", iface.Name, "error", err)
		return
	}
	perf.ControlRecv.Add(1)
	perf.RecvBytes.Add(float64(len(payload)))
	if state.DBG_log_router {
		r.log.Debug("recv", "from", sender, "iface", iface.Name, "msg", msg)
	}

	switch m := msg.(type) {
	case *protocol.RouteRequest:
		// the neighbour is refreshed once the request passed the duplicate check
		r.recvRequest(m, sender, iface)
	case *protocol.RouteReply:
		r.updateNeighbor(sender, iface)
		r.recvReply(m, sender, iface)
	case *protocol.RouteError:
		r.updateNeighbor(sender, iface)
		r.recvError(m, sender)
	case *protocol.RouteReplyAck:
		r.updateNeighbor(sender, iface)
		r.Log(ReplyAckReceived, "reply ack", "from", sender)
	default:
		r.Log(InconsistentState, "unhandled message", "type", msg.Type())
	}
}

func (r *Router) encode(msg protocol.Message) ([]byte, bool) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		perf.SendErrors.Add(1)
		r.Log(SendFailed, "failed to encode", "msg", msg, "error", err)
		return nil, false
	}
	return payload, true
}

func (r *Router) sendUnicast(msg protocol.Message, dst netip.Addr, iface state.Interface) {
	payload, ok := r.encode(msg)
	if !ok {
		return
	}
	if err := r.tp.SendUnicast(payload, dst, iface); err != nil {
		perf.SendErrors.Add(1)
		r.Log(SendFailed, "unicast failed", "dst", dst, "iface", iface.Name, "msg", msg, "error", err)
		return
	}
	perf.ControlSent.Add(1)
	perf.SentBytes.Add(float64(len(payload)))
}

func (r *Router) sendBroadcast(msg protocol.Message, iface state.Interface) {
	payload, ok := r.encode(msg)
	if !ok {
		return
	}
	if err := r.tp.SendBroadcast(payload, iface); err != nil {
		perf.SendErrors.Add(1)
		r.Log(SendFailed, "broadcast failed", "iface", iface.Name, "msg", msg, "error", err)
		return
	}
	perf.ControlSent.Add(1)
	perf.SentBytes.Add(float64(len(payload)))
}

// broadcastAll sends msg on every interface
func (r *Router) broadcastAll(msg protocol.Message) {
	for _, iface := range r.ifaces {
		r.sendBroadcast(msg, iface)
	}
}
