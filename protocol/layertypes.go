package protocol

import (
	"github.com/gopacket/gopacket"
)

var (
	// LayerTypeControl decodes any control message by looking at its type octet
	LayerTypeControl = gopacket.RegisterLayerType(
		1654,
		gopacket.LayerTypeMetadata{
			Name:    "AODVControl",
			Decoder: gopacket.DecodeFunc(decodeControl),
		},
	)

	LayerTypeRouteRequest = gopacket.RegisterLayerType(
		1655,
		gopacket.LayerTypeMetadata{
			Name:    "RouteRequest",
			Decoder: gopacket.DecodeFunc(decodeRouteRequest),
		},
	)
	LayerClassRouteRequest gopacket.LayerClass = LayerTypeRouteRequest

	LayerTypeRouteReply = gopacket.RegisterLayerType(
		1656,
		gopacket.LayerTypeMetadata{
			Name:    "RouteReply",
			Decoder: gopacket.DecodeFunc(decodeRouteReply),
		},
	)
	LayerClassRouteReply gopacket.LayerClass = LayerTypeRouteReply

	LayerTypeRouteError = gopacket.RegisterLayerType(
		1657,
		gopacket.LayerTypeMetadata{
			Name:    "RouteError",
			Decoder: gopacket.DecodeFunc(decodeRouteError),
		},
	)
	LayerClassRouteError gopacket.LayerClass = LayerTypeRouteError

	LayerTypeRouteReplyAck = gopacket.RegisterLayerType(
		1658,
		gopacket.LayerTypeMetadata{
			Name:    "RouteReplyAck",
			Decoder: gopacket.DecodeFunc(decodeRouteReplyAck),
		},
	)
	LayerClassRouteReplyAck gopacket.LayerClass = LayerTypeRouteReplyAck
)

func decodeControl(data []byte, pb gopacket.PacketBuilder) error {
	if len(data) < 1 {
		pb.SetTruncated()
		return ErrBufferTooShort
	}
	t, err := MessageType(data[0]).LayerType()
	if err != nil {
		return err
	}
	return t.Decode(data, pb)
}

func decodeMessage(m Message, data []byte, pb gopacket.PacketBuilder) error {
	err := m.DecodeFromBytes(data, pb)
	if err != nil {
		return err
	}
	pb.AddLayer(m)
	return nil
}

func decodeRouteRequest(data []byte, pb gopacket.PacketBuilder) error {
	return decodeMessage(&RouteRequest{}, data, pb)
}

func decodeRouteReply(data []byte, pb gopacket.PacketBuilder) error {
	return decodeMessage(&RouteReply{}, data, pb)
}

func decodeRouteError(data []byte, pb gopacket.PacketBuilder) error {
	return decodeMessage(&RouteError{}, data, pb)
}

func decodeRouteReplyAck(data []byte, pb gopacket.PacketBuilder) error {
	return decodeMessage(&RouteReplyAck{}, data, pb)
}
