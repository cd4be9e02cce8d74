package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

const (
	routeErrorHeaderLen = 4
	unreachableLen      = 8
	rerrFlagNoDelete    = 0x80

	// MaxUnreachable is the number of destinations that fit in one RouteError
	MaxUnreachable = 255
)

type UnreachableDest struct {
	Addr  netip.Addr
	Seqno uint32
}

// RouteError lists destinations that became unreachable through the sender.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     Type      |N|          Reserved           |   DestCount   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|            Unreachable Destination IP Address (1)             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|         Unreachable Destination Sequence Number (1)           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-|
//	|  Additional Unreachable Destination IP Addresses (if needed)  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type RouteError struct {
	layers.BaseLayer
	NoDelete    bool
	Unreachable []UnreachableDest
}

func (r *RouteError) Type() MessageType {
	return TypeRouteError
}

func (r *RouteError) LayerType() gopacket.LayerType {
	return LayerTypeRouteError
}

func (r *RouteError) CanDecode() gopacket.LayerClass {
	return LayerClassRouteError
}

func (r *RouteError) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (r *RouteError) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if err := checkLen(data, routeErrorHeaderLen, df); err != nil {
		return err
	}
	if MessageType(data[0]) != TypeRouteError {
		return fmt.Errorf("%w: %d is not a route error", ErrUnknownType, data[0])
	}
	r.NoDelete = data[1]&rerrFlagNoDelete != 0
	count := int(data[3])
	if count == 0 {
		return fmt.Errorf("route error without destinations")
	}
	n := routeErrorHeaderLen + count*unreachableLen
	if err := checkLen(data, n, df); err != nil {
		return err
	}
	r.Unreachable = make([]UnreachableDest, 0, count)
	for off := routeErrorHeaderLen; off < n; off += unreachableLen {
		r.Unreachable = append(r.Unreachable, UnreachableDest{
			Addr:  readAddr(data[off : off+4]),
			Seqno: binary.BigEndian.Uint32(data[off+4 : off+8]),
		})
	}
	r.BaseLayer = layers.BaseLayer{Contents: data[:n], Payload: data[n:]}
	return nil
}

func (r *RouteError) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	count := len(r.Unreachable)
	if count == 0 || count > MaxUnreachable {
		return fmt.Errorf("route error must carry 1 to %d destinations, got %d", MaxUnreachable, count)
	}
	buf, err := b.PrependBytes(routeErrorHeaderLen + count*unreachableLen)
	if err != nil {
		return err
	}
	buf[0] = byte(TypeRouteError)
	buf[1] = 0
	if r.NoDelete {
		buf[1] = rerrFlagNoDelete
	}
	buf[2] = 0
	buf[3] = uint8(count)
	off := routeErrorHeaderLen
	for _, u := range r.Unreachable {
		if err := putAddr(buf[off:off+4], u.Addr); err != nil {
			return err
		}
		binary.BigEndian.PutUint32(buf[off+4:off+8], u.Seqno)
		off += unreachableLen
	}
	return nil
}

func (r *RouteError) String() string {
	dsts := make([]string, 0, len(r.Unreachable))
	for _, u := range r.Unreachable {
		dsts = append(dsts, fmt.Sprintf("%s/%d", u.Addr, u.Seqno))
	}
	return fmt.Sprintf("RERR(N: %t, unreachable: [%s])", r.NoDelete, strings.Join(dsts, ", "))
}
