package router

import (
	"net/netip"
	"testing"
	"time"

	"netlab/internal/forwarder"
	"netlab/internal/logger"
	"netlab/internal/wire"
)

func advertPacket(pfx netip.Prefix, path []string) *wire.RouterPacket {
	return &wire.RouterPacket{
		Type:    wire.RouterAdvert,
		PathVec: &wire.PathVec{Prefix: pfx, Timestamp: 0, Cost: 0, Path: path},
	}
}

func newTestRouter(t *testing.T, neighbors []string) *Router {
	t.Helper()
	fwdr := forwarder.New(netip.MustParseAddr("10.0.0.1"), nil, &logger.NopLogger{})
	return New(Config{
		MyIP:           "10.0.0.1",
		HelloInterval:  time.Second,
		AdvertInterval: 10 * time.Second,
	}, fwdr, neighbors, &logger.NopLogger{})
}

func TestLoopSuppressionDiscardsOwnIP(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.2"})
	pfx := netip.MustParsePrefix("10.0.1.0/24")
	pkt := advertPacket(pfx, []string{"10.0.0.3", "10.0.0.1"})
	r.handleAdvert(0, pkt)
	if _, found := r.routes[pfx]; found {
		t.Fatal("expected advert containing our own IP to be discarded")
	}
}

func TestNewRouteIsAddedAndForwardingTableUpdated(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.2"})
	pfx := netip.MustParsePrefix("10.0.1.0/24")
	pkt := advertPacket(pfx, []string{"10.0.0.3"})
	r.handleAdvert(0, pkt)

	rt, found := r.routes[pfx]
	if !found || !rt.Valid {
		t.Fatalf("expected a valid new route, got %+v (found=%v)", rt, found)
	}
	if _, ok := r.fwdr.Table().Lookup(netip.MustParseAddr("10.0.1.5")); !ok {
		t.Fatal("expected forwarding table to gain an entry for the new route")
	}
}

func TestUpdateRuleInvalidToValidReplacesOnDifferentPath(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.2", "10.0.0.3"})
	existing := &Route{Pfx: netip.MustParsePrefix("10.0.1.0/24"), Path: []string{"10.0.0.9"}, OutLink: 0, Valid: false, Cost: 5}
	candidate := &Route{Path: []string{"10.0.0.8"}, OutLink: 1, Valid: true, Cost: 1, Timestamp: 5}

	changed, pathChanged := r.applyUpdateRule(existing, candidate)
	if !changed || !pathChanged {
		t.Fatal("expected invalid->valid with differing path to count as a path change")
	}
	if !existing.Valid || existing.OutLink != 1 {
		t.Fatalf("expected route replaced with candidate's link, got %+v", existing)
	}
}

func TestUpdateRuleSamePathRefreshesOnly(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.2"})
	existing := &Route{Path: []string{"10.0.0.9"}, OutLink: 0, Valid: true, Cost: 3, Timestamp: 1}
	candidate := &Route{Path: []string{"10.0.0.9"}, OutLink: 0, Valid: true, Cost: 3.5, Timestamp: 9}

	changed, pathChanged := r.applyUpdateRule(existing, candidate)
	if !changed || pathChanged || existing.Cost != 3.5 || existing.Timestamp != 9 {
		t.Fatalf("expected refreshed cost/timestamp only with no path change, got %+v", existing)
	}
}

func TestUpdateRuleNoChangeWhenNothingQualifies(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.2"})
	existing := &Route{Path: []string{"10.0.0.9"}, OutLink: 0, Valid: true, Cost: 1.0, Timestamp: 10}
	candidate := &Route{Path: []string{"10.0.0.5"}, OutLink: 0, Valid: true, Cost: 0.95, Timestamp: 11}

	if changed, _ := r.applyUpdateRule(existing, candidate); changed {
		t.Fatalf("expected no change, got replaced route %+v", existing)
	}
}

func TestAdjacentInPath(t *testing.T) {
	path := []string{"A", "B", "C"}
	if !adjacentInPath(path, "A", "B") {
		t.Fatal("expected A,B adjacent")
	}
	if adjacentInPath(path, "A", "C") {
		t.Fatal("A and C are not adjacent")
	}
}
