package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

const (
	RouteRequestLen = 24

	rreqFlagJoin            = 0x80
	rreqFlagRepair          = 0x40
	rreqFlagGratuitous      = 0x20
	rreqFlagDestinationOnly = 0x10
	rreqFlagUnknownSeqno    = 0x08
)

// RouteRequest is flooded to discover a route to Destination.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     Type      |J|R|G|D|U|   Reserved          |   Hop Count   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                            RREQ ID                            |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Destination IP Address                     |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                  Destination Sequence Number                  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Originator IP Address                      |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                  Originator Sequence Number                   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type RouteRequest struct {
	layers.BaseLayer
	Join            bool
	Repair          bool
	Gratuitous      bool
	DestinationOnly bool
	UnknownSeqno    bool
	HopCount        uint8
	RequestId       uint32
	Destination     netip.Addr
	DestSeqno       uint32
	Originator      netip.Addr
	OriginSeqno     uint32
}

func (r *RouteRequest) Type() MessageType {
	return TypeRouteRequest
}

func (r *RouteRequest) LayerType() gopacket.LayerType {
	return LayerTypeRouteRequest
}

func (r *RouteRequest) CanDecode() gopacket.LayerClass {
	return LayerClassRouteRequest
}

func (r *RouteRequest) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (r *RouteRequest) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if err := checkLen(data, RouteRequestLen, df); err != nil {
		return err
	}
	if MessageType(data[0]) != TypeRouteRequest {
		return fmt.Errorf("%w: %d is not a route request", ErrUnknownType, data[0])
	}
	flags := data[1]
	r.Join = flags&rreqFlagJoin != 0
	r.Repair = flags&rreqFlagRepair != 0
	r.Gratuitous = flags&rreqFlagGratuitous != 0
	r.DestinationOnly = flags&rreqFlagDestinationOnly != 0
	r.UnknownSeqno = flags&rreqFlagUnknownSeqno != 0
	r.HopCount = data[3]
	r.RequestId = binary.BigEndian.Uint32(data[4:8])
	r.Destination = readAddr(data[8:12])
	r.DestSeqno = binary.BigEndian.Uint32(data[12:16])
	r.Originator = readAddr(data[16:20])
	r.OriginSeqno = binary.BigEndian.Uint32(data[20:24])
	r.BaseLayer = layers.BaseLayer{Contents: data[:RouteRequestLen], Payload: data[RouteRequestLen:]}
	return nil
}

func (r *RouteRequest) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	buf, err := b.PrependBytes(RouteRequestLen)
	if err != nil {
		return err
	}
	buf[0] = byte(TypeRouteRequest)
	var flags byte
	if r.Join {
		flags |= rreqFlagJoin
	}
	if r.Repair {
		flags |= rreqFlagRepair
	}
	if r.Gratuitous {
		flags |= rreqFlagGratuitous
	}
	if r.DestinationOnly {
		flags |= rreqFlagDestinationOnly
	}
	if r.UnknownSeqno {
		flags |= rreqFlagUnknownSeqno
	}
	buf[1] = flags
	buf[2] = 0
	buf[3] = r.HopCount
	binary.BigEndian.PutUint32(buf[4:8], r.RequestId)
	if err := putAddr(buf[8:12], r.Destination); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[12:16], r.DestSeqno)
	if err := putAddr(buf[16:20], r.Originator); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[20:24], r.OriginSeqno)
	return nil
}

func (r *RouteRequest) String() string {
	dstSeq := fmt.Sprint(r.DestSeqno)
	if r.UnknownSeqno {
		dstSeq = "?"
	}
	return fmt.Sprintf("RREQ(id: %d, dst: %s/%s, orig: %s/%d, hops: %d, G: %t, D: %t)",
		r.RequestId, r.Destination, dstSeq, r.Originator, r.OriginSeqno, r.HopCount, r.Gratuitous, r.DestinationOnly)
}
