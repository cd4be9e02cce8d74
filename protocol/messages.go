// Package protocol implements the wire format of the routing control messages.
//
// Every message starts with a one octet type followed by a fixed header; all
// multi-octet fields are big endian and addresses are IPv4. Each message is a
// gopacket layer, so it can be decoded with a DecodingLayerParser or serialized
// with gopacket.SerializeLayers.
package protocol

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/gopacket/gopacket"
)

type MessageType uint8

const (
	TypeRouteRequest  MessageType = 1
	TypeRouteReply    MessageType = 2
	TypeRouteError    MessageType = 3
	TypeRouteReplyAck MessageType = 4
)

var (
	ErrBufferTooShort = errors.New("buffer too short")
	ErrUnknownType    = errors.New("unknown message type")
	ErrNotIPv4        = errors.New("address is not IPv4")
)

func (t MessageType) String() string {
	switch t {
	case TypeRouteRequest:
		return "RREQ"
	case TypeRouteReply:
		return "RREP"
	case TypeRouteError:
		return "RERR"
	case TypeRouteReplyAck:
		return "RREP_ACK"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// LayerType maps the type octet to the layer that decodes it
func (t MessageType) LayerType() (gopacket.LayerType, error) {
	switch t {
	case TypeRouteRequest:
		return LayerTypeRouteRequest, nil
	case TypeRouteReply:
		return LayerTypeRouteReply, nil
	case TypeRouteError:
		return LayerTypeRouteError, nil
	case TypeRouteReplyAck:
		return LayerTypeRouteReplyAck, nil
	default:
		return gopacket.LayerTypeZero, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
}

// Message is one of *RouteRequest, *RouteReply, *RouteError or *RouteReplyAck
type Message interface {
	gopacket.Layer
	gopacket.DecodingLayer
	gopacket.SerializableLayer
	fmt.Stringer
	Type() MessageType
}

// Decode parses a single control message
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, ErrBufferTooShort
	}
	var m Message
	switch MessageType(data[0]) {
	case TypeRouteRequest:
		m = &RouteRequest{}
	case TypeRouteReply:
		m = &RouteReply{}
	case TypeRouteError:
		m = &RouteError{}
	case TypeRouteReplyAck:
		m = &RouteReplyAck{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, data[0])
	}
	if err := m.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MessageType(data[0]), err)
	}
	return m, nil
}

// Encode serializes m into a freshly allocated buffer
func Encode(m Message) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, m); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return buf.Bytes(), nil
}

func checkLen(data []byte, n int, df gopacket.DecodeFeedback) error {
	if len(data) < n {
		df.SetTruncated()
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, n, len(data))
	}
	return nil
}

func readAddr(b []byte) netip.Addr {
	return netip.AddrFrom4([4]byte(b[:4]))
}

func putAddr(b []byte, addr netip.Addr) error {
	if !addr.Is4() {
		return fmt.Errorf("%w: %v", ErrNotIPv4, addr)
	}
	a := addr.As4()
	copy(b, a[:])
	return nil
}
