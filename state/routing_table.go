package state

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"time"

	"github.com/gaissmai/bart"
	"github.com/olekukonko/tablewriter"
)

var (
	ErrRouteExists  = errors.New("route already exists")
	ErrRouteMissing = errors.New("route does not exist")
)

// RoutingTable holds at most one entry per destination. Entries are stored by
// host prefix so that forwarding lookups share the same structure.
//
// RoutingTable is not safe for concurrent use, it is owned by a single router.
type RoutingTable struct {
	routes bart.Table[*RouteEntry]
}

func NewRoutingTable() *RoutingTable {
	return &RoutingTable{}
}

func hostPrefix(addr netip.Addr) netip.Prefix {
	return netip.PrefixFrom(addr, addr.BitLen())
}

// Lookup returns a copy of the entry for dst
func (t *RoutingTable) Lookup(dst netip.Addr) (RouteEntry, bool) {
	if !dst.IsValid() {
		return RouteEntry{}, false
	}
	e, ok := t.routes.Get(hostPrefix(dst))
	if !ok {
		return RouteEntry{}, false
	}
	return e.Clone(), true
}

// LookupAddr performs a longest-prefix match for addr
func (t *RoutingTable) LookupAddr(addr netip.Addr) (RouteEntry, bool) {
	e, ok := t.routes.Lookup(addr)
	if !ok {
		return RouteEntry{}, false
	}
	return e.Clone(), true
}

// AddRoute inserts a new entry, failing if one exists for the destination
func (t *RoutingTable) AddRoute(e RouteEntry) error {
	if !e.Destination.IsValid() {
		return fmt.Errorf("invalid destination %v", e.Destination)
	}
	pfx := hostPrefix(e.Destination)
	if _, ok := t.routes.Get(pfx); ok {
		return fmt.Errorf("%w: %s", ErrRouteExists, e.Destination)
	}
	e = e.Clone()
	slices.SortFunc(e.Precursors, netip.Addr.Compare)
	e.Precursors = slices.Compact(e.Precursors)
	t.routes.Insert(pfx, &e)
	return nil
}

// Update replaces the stored entry for dst. Precursors are merged rather than
// replaced, and a valid sequence number never moves backwards.
func (t *RoutingTable) Update(dst netip.Addr, e RouteEntry) error {
	pfx := hostPrefix(dst)
	old, ok := t.routes.Get(pfx)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRouteMissing, dst)
	}
	next := e.Clone()
	next.Destination = dst
	if old.ValidSeqno && SeqnoLt(next.Seqno, old.Seqno) {
		next.Seqno = old.Seqno
	}
	for _, p := range old.Precursors {
		next.InsertPrecursor(p)
	}
	*old = next
	return nil
}

// Delete removes the entry for dst
func (t *RoutingTable) Delete(dst netip.Addr) bool {
	pfx := hostPrefix(dst)
	if _, ok := t.routes.Get(pfx); !ok {
		return false
	}
	t.routes.Delete(pfx)
	return true
}

// DeletePrecursor removes addr from the precursor set of every entry
func (t *RoutingTable) DeletePrecursor(addr netip.Addr) {
	for _, e := range t.routes.All() {
		e.DeletePrecursor(addr)
	}
}

// Purge removes every entry whose lifetime has elapsed and returns them
func (t *RoutingTable) Purge(now time.Time) []RouteEntry {
	expired := make([]RouteEntry, 0)
	for _, e := range t.routes.All() {
		if e.IsExpired(now) {
			expired = append(expired, e.Clone())
		}
	}
	for _, e := range expired {
		t.routes.Delete(hostPrefix(e.Destination))
	}
	return expired
}

// Entries returns copies of all entries ordered by destination
func (t *RoutingTable) Entries() []RouteEntry {
	entries := make([]RouteEntry, 0, t.routes.Size())
	for _, e := range t.routes.All() {
		entries = append(entries, e.Clone())
	}
	slices.SortFunc(entries, func(a, b RouteEntry) int {
		return a.Destination.Compare(b.Destination)
	})
	return entries
}

func (t *RoutingTable) Len() int {
	return t.routes.Size()
}

// Print writes a human-readable dump of the table
func (t *RoutingTable) Print(w io.Writer, now time.Time) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Destination", "Next Hop", "Interface", "Hops", "Seqno", "Flag", "Expires", "Precursors"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, e := range t.Entries() {
		seq := "-"
		if e.ValidSeqno {
			seq = fmt.Sprint(e.Seqno)
		}
		expires := "never"
		if e.Lifetime.Before(InfiniteLifetime) {
			expires = e.Lifetime.Sub(now).Truncate(time.Millisecond).String()
		}
		precursors := make([]string, 0, len(e.Precursors))
		for _, p := range e.Precursors {
			precursors = append(precursors, p.String())
		}
		table.Append([]string{
			e.Destination.String(),
			e.NextHop.String(),
			e.Iface.Name,
			fmt.Sprint(e.Hops),
			seq,
			e.Flag.String(),
			expires,
			fmt.Sprint(precursors),
		})
	}
	table.Render()
}
