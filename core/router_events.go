package core

import "fmt"

type RouterEvent int

// trace events

const (
	RouteAdded RouterEvent = iota
	RouteUpdated
	RouteExpired
	RouteInvalidated
	DuplicateRequest
	OwnRequest
	StaleReply
	RequestForwarded
	ReplySent
	ReplyForwarded
	GratuitousReplySent
	HelloSent
	HelloReceived
	ReplyAckReceived
	DiscoveryStarted
	DiscoveryRetried
	DiscoveryComplete
	DiscoveryInFlight
	HopLimitReached
	LocalRepairStarted
	LocalRepairComplete
	RouteErrorSent
	RouteErrorIgnored
	NeighborLost
	NoRouteForData
)

// warn events

const (
	MalformedMessage RouterEvent = iota + 1000
	ReverseRouteMissing
	LinkBroken
	DiscoveryFailed
	LocalRepairFailed
	SendFailed
	InconsistentState
)

var eventNames = map[RouterEvent]string{
	RouteAdded:          "RouteAdded",
	RouteUpdated:        "RouteUpdated",
	RouteExpired:        "RouteExpired",
	RouteInvalidated:    "RouteInvalidated",
	DuplicateRequest:    "DuplicateRequest",
	OwnRequest:          "OwnRequest",
	StaleReply:          "StaleReply",
	RequestForwarded:    "RequestForwarded",
	ReplySent:           "ReplySent",
	ReplyForwarded:      "ReplyForwarded",
	GratuitousReplySent: "GratuitousReplySent",
	HelloSent:           "HelloSent",
	HelloReceived:       "HelloReceived",
	ReplyAckReceived:    "ReplyAckReceived",
	DiscoveryStarted:    "DiscoveryStarted",
	DiscoveryRetried:    "DiscoveryRetried",
	DiscoveryComplete:   "DiscoveryComplete",
	DiscoveryInFlight:   "DiscoveryInFlight",
	HopLimitReached:     "HopLimitReached",
	LocalRepairStarted:  "LocalRepairStarted",
	LocalRepairComplete: "LocalRepairComplete",
	RouteErrorSent:      "RouteErrorSent",
	RouteErrorIgnored:   "RouteErrorIgnored",
	NeighborLost:        "NeighborLost",
	NoRouteForData:      "NoRouteForData",
	MalformedMessage:    "MalformedMessage",
	ReverseRouteMissing: "ReverseRouteMissing",
	LinkBroken:          "LinkBroken",
	DiscoveryFailed:     "DiscoveryFailed",
	LocalRepairFailed:   "LocalRepairFailed",
	SendFailed:          "SendFailed",
	InconsistentState:   "InconsistentState",
}

func (e RouterEvent) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

// IsWarning reports whether the event indicates a fault rather than normal protocol activity
func (e RouterEvent) IsWarning() bool {
	return e >= 1000
}
