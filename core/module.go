package core

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/encodeous/aodv/impl"
	"github.com/encodeous/aodv/state"
)

// PacketTransport is a Transport that also receives packets
type PacketTransport interface {
	Transport
	Start(ctx context.Context, handler impl.PacketHandler) error
	Close() error
}

// VirtualNet replaces the system's interfaces, it is passed in AuxConfig["vnet"]
type VirtualNet interface {
	Transport(node state.NodeId) (PacketTransport, error)
}

// AodvNode runs the router on the system's interfaces
type AodvNode struct {
	Router    *Router
	Transport PacketTransport
}

func newTransport(s *state.State) (PacketTransport, error) {
	if x, ok := s.AuxConfig["vnet"]; ok {
		vn, ok := x.(VirtualNet)
		if !ok {
			return nil, fmt.Errorf("aux config \"vnet\" is a %T, not a VirtualNet", x)
		}
		return vn.Transport(s.Id)
	}
	return impl.NewUDPTransport(s.LocalCfg, s.Log)
}

func (n *AodvNode) Init(s *state.State) error {
	s.Log.Debug("init router")
	tp, err := newTransport(s)
	if err != nil {
		return err
	}
	n.Transport = tp
	r, err := NewRouter(RouterCfg{
		Protocol:  s.LocalCfg.Protocol,
		Transport: tp,
		Clock:     state.DispatchClock{Env: s.Env},
		Log:       s.Log,
	})
	if err != nil {
		return err
	}
	n.Router = r
	if err = r.Start(); err != nil {
		return err
	}

	s.Log.Debug("start transport")
	err = tp.Start(s.Context, func(payload []byte, sender netip.Addr, iface state.Interface) {
		s.Dispatch(func(s *state.State) error {
			n.Router.HandlePacket(payload, sender, iface)
			return nil
		})
	})
	if err != nil {
		return err
	}

	if _, virtual := s.AuxConfig["vnet"]; !virtual {
		path := IPCSocketPath(s.Id)
		if err := serveIPC(s, path); err != nil {
			s.Log.Warn("control socket unavailable", "path", path, "error", err)
		}
	}

	if state.DBG_log_route_table {
		s.Env.RepeatTask(func(s *state.State) error {
			n.Router.Print(os.Stderr)
			return nil
		}, 5*time.Second)
	}
	return nil
}

func (n *AodvNode) Cleanup(s *state.State) error {
	if n.Router != nil {
		n.Router.Stop()
	}
	if n.Transport != nil {
		return n.Transport.Close()
	}
	return nil
}
