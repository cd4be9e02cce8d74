package state

import (
	"net/netip"
	"time"
)

const (
	// Port is the well-known UDP port used by all control traffic.
	Port = 654

	// MaxSeqno is the largest sequence number representable on the wire.
	MaxSeqno = ^(uint32)(0)

	// InitialSeqno is the sequence number a node starts with.
	InitialSeqno = uint32(2)
	// InitialRequestId is the request (broadcast) id a node starts with.
	InitialRequestId = uint32(1)
)

var (
	DefaultHelloInterval      = time.Second
	DefaultBroadcastIdSave    = time.Second * 6
	DefaultActiveRouteTimeout = time.Second * 3
	DefaultNetDiameter        = uint8(35)
	DefaultNodeTraversalTime  = time.Millisecond * 40
	DefaultAllowedHelloLoss   = 2
	DefaultPurgeFrequency     = time.Millisecond * 500
	DefaultRreqRetries        = 2

	// InfiniteLifetime is used for routes that never expire (interface broadcast routes).
	InfiniteLifetime = time.Unix(1<<63-62135596801, 999999999)

	// LimitedBroadcast is 255.255.255.255, it never leaves the local link.
	LimitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

	// SafeMTU bounds the size of a single control datagram.
	SafeMTU = 1200
)

// debug toggles, set from the command line

var (
	DBG_log_router      = false
	DBG_log_route_table = false
	DBG_trace           = false
	DBG_debug           = false
)
