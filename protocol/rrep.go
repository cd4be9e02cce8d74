package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

const (
	RouteReplyLen = 20

	rrepFlagRepair      = 0x80
	rrepFlagAckRequired = 0x40
	rrepPrefixMask      = 0x1f
)

// RouteReply is unicast back along the reverse path of a RouteRequest. A reply
// whose Destination equals its Originator is a hello.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     Type      |R|A|    Reserved     |Prefix Sz|   Hop Count   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                     Destination IP address                    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                  Destination Sequence Number                  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Originator IP address                      |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           Lifetime                            |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type RouteReply struct {
	layers.BaseLayer
	Repair      bool
	AckRequired bool
	PrefixSize  uint8
	HopCount    uint8
	Destination netip.Addr
	DestSeqno   uint32
	Originator  netip.Addr
	// Lifetime has millisecond resolution on the wire
	Lifetime time.Duration
}

func (r *RouteReply) Type() MessageType {
	return TypeRouteReply
}

func (r *RouteReply) LayerType() gopacket.LayerType {
	return LayerTypeRouteReply
}

func (r *RouteReply) CanDecode() gopacket.LayerClass {
	return LayerClassRouteReply
}

func (r *RouteReply) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

// IsHello reports whether the reply advertises its sender to its neighbours
func (r *RouteReply) IsHello() bool {
	return r.Destination == r.Originator
}

func (r *RouteReply) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if err := checkLen(data, RouteReplyLen, df); err != nil {
		return err
	}
	if MessageType(data[0]) != TypeRouteReply {
		return fmt.Errorf("%w: %d is not a route reply", ErrUnknownType, data[0])
	}
	r.Repair = data[1]&rrepFlagRepair != 0
	r.AckRequired = data[1]&rrepFlagAckRequired != 0
	r.PrefixSize = data[2] & rrepPrefixMask
	r.HopCount = data[3]
	r.Destination = readAddr(data[4:8])
	r.DestSeqno = binary.BigEndian.Uint32(data[8:12])
	r.Originator = readAddr(data[12:16])
	r.Lifetime = time.Duration(binary.BigEndian.Uint32(data[16:20])) * time.Millisecond
	r.BaseLayer = layers.BaseLayer{Contents: data[:RouteReplyLen], Payload: data[RouteReplyLen:]}
	return nil
}

func (r *RouteReply) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if r.PrefixSize > rrepPrefixMask {
		return fmt.Errorf("prefix size %d does not fit in 5 bits", r.PrefixSize)
	}
	buf, err := b.PrependBytes(RouteReplyLen)
	if err != nil {
		return err
	}
	buf[0] = byte(TypeRouteReply)
	var flags byte
	if r.Repair {
		flags |= rrepFlagRepair
	}
	if r.AckRequired {
		flags |= rrepFlagAckRequired
	}
	buf[1] = flags
	buf[2] = r.PrefixSize
	buf[3] = r.HopCount
	if err := putAddr(buf[4:8], r.Destination); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[8:12], r.DestSeqno)
	if err := putAddr(buf[12:16], r.Originator); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[16:20], lifetimeMillis(r.Lifetime))
	return nil
}

func lifetimeMillis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms < 0:
		return 0
	case ms > int64(^uint32(0)):
		return ^uint32(0)
	default:
		return uint32(ms)
	}
}

func (r *RouteReply) String() string {
	kind := "RREP"
	if r.IsHello() {
		kind = "HELLO"
	}
	return fmt.Sprintf("%s(dst: %s/%d, orig: %s, hops: %d, lifetime: %s)",
		kind, r.Destination, r.DestSeqno, r.Originator, r.HopCount, r.Lifetime)
}
