package state

import (
	"fmt"
	"net/netip"
	"slices"
	"time"
)

type NodeId string

// Interface is a local interface that participates in the protocol.
type Interface struct {
	Index     int
	Name      string
	Local     netip.Addr
	Broadcast netip.Addr
	Prefix    netip.Prefix
}

func (i Interface) String() string {
	return fmt.Sprintf("%s(%s)", i.Name, i.Local)
}

// Contains reports whether addr is on the interface's subnet
func (i Interface) Contains(addr netip.Addr) bool {
	return i.Prefix.IsValid() && i.Prefix.Contains(addr)
}

type RouteFlag uint8

const (
	RouteUp RouteFlag = iota
	RouteDown
	RouteInRepair
)

func (f RouteFlag) String() string {
	switch f {
	case RouteUp:
		return "UP"
	case RouteDown:
		return "DOWN"
	case RouteInRepair:
		return "IN_REPAIR"
	default:
		return fmt.Sprintf("RouteFlag(%d)", uint8(f))
	}
}

type RouteEntry struct {
	Destination netip.Addr
	ValidSeqno  bool
	Seqno       uint32
	Hops        uint8
	NextHop     netip.Addr
	Iface       Interface
	// Lifetime is the absolute instant the entry expires at
	Lifetime time.Time
	Flag     RouteFlag
	// Precursors are neighbours that forward through us towards Destination, kept sorted.
	Precursors []netip.Addr
}

// InsertPrecursor adds addr to the precursor set, returning false if it was already present
func (e *RouteEntry) InsertPrecursor(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	idx, found := slices.BinarySearchFunc(e.Precursors, addr, netip.Addr.Compare)
	if found {
		return false
	}
	e.Precursors = slices.Insert(e.Precursors, idx, addr)
	return true
}

func (e RouteEntry) HasPrecursor(addr netip.Addr) bool {
	_, found := slices.BinarySearchFunc(e.Precursors, addr, netip.Addr.Compare)
	return found
}

func (e *RouteEntry) DeletePrecursor(addr netip.Addr) bool {
	idx, found := slices.BinarySearchFunc(e.Precursors, addr, netip.Addr.Compare)
	if !found {
		return false
	}
	e.Precursors = slices.Delete(e.Precursors, idx, idx+1)
	return true
}

// IsExpired reports whether the lifetime has elapsed, regardless of whether it was purged yet.
func (e RouteEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.Lifetime)
}

// IsUsable reports whether the entry may be used to forward traffic
func (e RouteEntry) IsUsable(now time.Time) bool {
	return e.Flag == RouteUp && !e.IsExpired(now)
}

// Clone returns a copy that does not share the precursor set
func (e RouteEntry) Clone() RouteEntry {
	e.Precursors = slices.Clone(e.Precursors)
	return e
}

func (e RouteEntry) String() string {
	seq := "?"
	if e.ValidSeqno {
		seq = fmt.Sprint(e.Seqno)
	}
	return fmt.Sprintf("(dst: %s, nh: %s, hops: %d, seqno: %s, flag: %s)", e.Destination, e.NextHop, e.Hops, seq, e.Flag)
}
