package protocol

import (
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

const RouteReplyAckLen = 2

// RouteReplyAck acknowledges a RouteReply sent with the A flag
type RouteReplyAck struct {
	layers.BaseLayer
}

func (r *RouteReplyAck) Type() MessageType {
	return TypeRouteReplyAck
}

func (r *RouteReplyAck) LayerType() gopacket.LayerType {
	return LayerTypeRouteReplyAck
}

func (r *RouteReplyAck) CanDecode() gopacket.LayerClass {
	return LayerClassRouteReplyAck
}

func (r *RouteReplyAck) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (r *RouteReplyAck) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if err := checkLen(data, RouteReplyAckLen, df); err != nil {
		return err
	}
	if MessageType(data[0]) != TypeRouteReplyAck {
		return fmt.Errorf("%w: %d is not a route reply ack", ErrUnknownType, data[0])
	}
	r.BaseLayer = layers.BaseLayer{Contents: data[:RouteReplyAckLen], Payload: data[RouteReplyAckLen:]}
	return nil
}

func (r *RouteReplyAck) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	buf, err := b.PrependBytes(RouteReplyAckLen)
	if err != nil {
		return err
	}
	buf[0] = byte(TypeRouteReplyAck)
	buf[1] = 0
	return nil
}

func (r *RouteReplyAck) String() string {
	return "RREP_ACK"
}
