package dht

import (
	"netlab/internal/logger"
	"netlab/internal/ringkey"
	"netlab/internal/wire"
)

// routingTable is the bounded, adaptive peer list every DHT node
// maintains alongside its successor/predecessor, grounded on the
// teacher's routingtable.go (internal/routingtable/routingtable.go)
// but reshaped to the spec's simpler contract: a flat ordered list of
// (address, firstHash) entries bounded by numRoutes, always retaining
// the successor, evicting the oldest non-successor entry under
// pressure, and rejecting duplicate values.
type routingTable struct {
	lgr       logger.Logger
	numRoutes int
	entries   []wire.NodeRef
}

func newRoutingTable(lgr logger.Logger, numRoutes int) *routingTable {
	return &routingTable{lgr: lgr, numRoutes: numRoutes}
}

func (t *routingTable) contains(ref wire.NodeRef) bool {
	for _, e := range t.entries {
		if e == ref {
			return true
		}
	}
	return false
}

// addRoute inserts ref if it isn't already present, evicting the
// oldest non-successor entry when the table is at capacity. succ is
// the current successor, which is never evicted. isChanged reports
// whether the table's contents actually changed -- including the
// transition from numRoutes-1 to numRoutes entries, which the
// teacher's original left uncounted (spec §9: fixed here rather than
// preserved, since the bug has no observable benefit).
func (t *routingTable) addRoute(ref wire.NodeRef, succ wire.NodeRef) (isChanged bool) {
	if t.contains(ref) {
		return false
	}
	if t.numRoutes <= 0 {
		return false
	}
	if len(t.entries) >= t.numRoutes {
		evictIdx := -1
		for i, e := range t.entries {
			if e != succ {
				evictIdx = i
				break
			}
		}
		if evictIdx == -1 {
			// every remaining slot holds the successor (can only happen
			// if numRoutes==1 and succ already occupies it); nothing safe
			// to evict, so the new route is dropped.
			t.lgr.Debug("routing table full of successor entries, dropping route", logger.F("ref", ref.String()))
			return false
		}
		evicted := t.entries[evictIdx]
		t.entries = append(t.entries[:evictIdx], t.entries[evictIdx+1:]...)
		t.lgr.Debug("routing table evicted oldest route", logger.F("evicted", evicted.String()))
	}
	t.entries = append(t.entries, ref)
	return true
}

// removeRoute deletes every entry matching addr, building a fresh
// slice rather than mutating t.entries while ranging over it (spec §9
// flags this as unspecified in the original; this is the safe idiom).
func (t *routingTable) removeRoute(addr string) (isChanged bool) {
	kept := make([]wire.NodeRef, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Addr == addr {
			isChanged = true
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return isChanged
}

// forwardTarget picks the routing-table entry whose firstHash
// minimizes the clockwise distance to h, ties broken by first
// occurrence (spec §4.1).
func (t *routingTable) forwardTarget(h int32) (wire.NodeRef, bool) {
	if len(t.entries) == 0 {
		return wire.NodeRef{}, false
	}
	best := t.entries[0]
	bestDist := ringkey.ClockwiseDist(h, best.FirstHash)
	for _, e := range t.entries[1:] {
		d := ringkey.ClockwiseDist(h, e.FirstHash)
		if d < bestDist {
			best, bestDist = e, d
		}
	}
	return best, true
}

func (t *routingTable) len() int {
	return len(t.entries)
}
