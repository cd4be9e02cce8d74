package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/encodeous/aodv/state"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"
)

// PacketHandler receives control messages, it is called from the reader goroutine
type PacketHandler func(payload []byte, sender netip.Addr, iface state.Interface)

// UDPTransport carries control traffic over a single UDP socket bound to the
// protocol port. The receiving interface is recovered from control messages.
type UDPTransport struct {
	port    uint16
	ifaces  []state.Interface
	byIndex map[int]state.Interface
	log     *slog.Logger

	conn   *ipv4.PacketConn
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewUDPTransport resolves the configured interfaces against the system
func NewUDPTransport(cfg state.LocalCfg, log *slog.Logger) (*UDPTransport, error) {
	t := &UDPTransport{
		port:    cfg.Port,
		byIndex: make(map[int]state.Interface),
		log:     log,
	}
	if t.port == 0 {
		t.port = state.Port
	}
	for _, ic := range cfg.Interfaces {
		ifi, err := net.InterfaceByName(ic.Name)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", ic.Name, err)
		}
		if ifi.Flags&net.FlagUp == 0 {
			log.Warn("interface is down", "iface", ic.Name)
		}
		iface := ic.ToInterface(ifi.Index)
		t.ifaces = append(t.ifaces, iface)
		t.byIndex[ifi.Index] = iface
	}
	return t, nil
}

func (t *UDPTransport) Interfaces() []state.Interface {
	return t.ifaces
}

// Start binds the socket and starts reading, packets are passed to handler
func (t *UDPTransport) Start(ctx context.Context, handler PacketHandler) error {
	lc := &net.ListenConfig{Control: controlSocket}
	c, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", t.port))
	if err != nil {
		return fmt.Errorf("failed to bind control port: %w", err)
	}
	pc := ipv4.NewPacketConn(c)
	if err = pc.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		_ = pc.Close()
		return fmt.Errorf("err enable ipv4 ControlMessage: %w", err)
	}
	// control messages never travel further than one hop
	if err = pc.SetTTL(1); err != nil {
		_ = pc.Close()
		return fmt.Errorf("err set ttl: %w", err)
	}
	t.conn = pc

	ctx, t.cancel = context.WithCancel(ctx)
	t.group, ctx = errgroup.WithContext(ctx)
	t.group.Go(func() error {
		<-ctx.Done()
		return pc.Close()
	})
	t.group.Go(func() error {
		return t.readLoop(pc, handler)
	})
	return nil
}

func (t *UDPTransport) readLoop(pc *ipv4.PacketConn, handler PacketHandler) error {
	buf := make([]byte, 65535)
	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.log.Warn("control socket read failed", "error", err)
			continue
		}
		if cm == nil {
			continue
		}
		iface, ok := t.byIndex[cm.IfIndex]
		if !ok {
			continue
		}
		udpAddr, ok := src.(*net.UDPAddr)
		if !ok || udpAddr.Port != int(t.port) {
			continue
		}
		sender := udpAddr.AddrPort().Addr().Unmap()
		payload := make([]byte, n)
		copy(payload, buf[:n])
		handler(payload, sender, iface)
	}
}

func (t *UDPTransport) write(payload []byte, dst netip.Addr, iface state.Interface) error {
	if t.conn == nil {
		return errors.New("transport not started")
	}
	cm := &ipv4.ControlMessage{IfIndex: iface.Index, Src: iface.Local.AsSlice()}
	_, err := t.conn.WriteTo(payload, cm, &net.UDPAddr{IP: dst.AsSlice(), Port: int(t.port)})
	return err
}

func (t *UDPTransport) SendBroadcast(payload []byte, iface state.Interface) error {
	return t.write(payload, iface.Broadcast, iface)
}

func (t *UDPTransport) SendUnicast(payload []byte, dst netip.Addr, iface state.Interface) error {
	return t.write(payload, dst, iface)
}

// DeliverLocally is a no-op, this transport only carries control traffic
func (t *UDPTransport) DeliverLocally(pkt []byte, iface state.Interface) {
	t.log.Debug("local delivery", "iface", iface.Name, "len", len(pkt))
}

// Close stops the reader and releases the socket
func (t *UDPTransport) Close() error {
	if t.cancel == nil {
		return nil
	}
	t.cancel()
	return t.group.Wait()
}
