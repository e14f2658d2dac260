package dht

import (
	"testing"

	"netlab/internal/logger"
	"netlab/internal/wire"
)

func ref(addr string, h int32) wire.NodeRef {
	return wire.NodeRef{Addr: addr, FirstHash: h}
}

func TestRoutingTableBoundAndSuccessorRetained(t *testing.T) {
	rt := newRoutingTable(&logger.NopLogger{}, 2)
	succ := ref("10.0.0.1:9000", 1)

	rt.addRoute(succ, succ)
	rt.addRoute(ref("10.0.0.2:9000", 2), succ)
	rt.addRoute(ref("10.0.0.3:9000", 3), succ) // over capacity, should evict non-successor

	if rt.len() > 2 {
		t.Fatalf("routing table exceeded numRoutes: %d entries", rt.len())
	}
	if !rt.contains(succ) {
		t.Fatal("successor must never be evicted")
	}
}

func TestRoutingTableNoDuplicates(t *testing.T) {
	rt := newRoutingTable(&logger.NopLogger{}, 5)
	succ := ref("10.0.0.1:9000", 1)
	rt.addRoute(succ, succ)
	changed := rt.addRoute(succ, succ)
	if changed {
		t.Fatal("adding a duplicate route should report no change")
	}
	if rt.len() != 1 {
		t.Fatalf("expected 1 entry, got %d", rt.len())
	}
}

func TestRoutingTableGrowthToCapacityCountsAsChange(t *testing.T) {
	rt := newRoutingTable(&logger.NopLogger{}, 2)
	succ := ref("10.0.0.1:9000", 1)
	if !rt.addRoute(succ, succ) {
		t.Fatal("first insert must report a change")
	}
	if !rt.addRoute(ref("10.0.0.2:9000", 2), succ) {
		t.Fatal("growth from numRoutes-1 to numRoutes must report a change")
	}
}

func TestRoutingTableRemoveRoute(t *testing.T) {
	rt := newRoutingTable(&logger.NopLogger{}, 5)
	rt.addRoute(ref("10.0.0.1:9000", 1), ref("10.0.0.1:9000", 1))
	rt.addRoute(ref("10.0.0.2:9000", 2), ref("10.0.0.1:9000", 1))

	if !rt.removeRoute("10.0.0.1:9000") {
		t.Fatal("expected removeRoute to report a change")
	}
	if rt.len() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", rt.len())
	}
	if rt.removeRoute("10.0.0.1:9000") {
		t.Fatal("removing an absent route should report no change")
	}
}

func TestForwardTargetPicksClosestClockwise(t *testing.T) {
	rt := newRoutingTable(&logger.NopLogger{}, 5)
	rt.addRoute(ref("a", 100), ref("a", 100))
	rt.addRoute(ref("b", 200), ref("a", 100))
	rt.addRoute(ref("c", 50), ref("a", 100))

	target, ok := rt.forwardTarget(210)
	if !ok {
		t.Fatal("expected a forward target")
	}
	if target.Addr != "b" {
		t.Fatalf("expected closest clockwise entry 'b', got %q", target.Addr)
	}
}
