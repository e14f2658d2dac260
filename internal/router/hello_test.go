package router

import (
	"net/netip"
	"testing"

	"netlab/internal/wire"
)

func TestHandleHello2UMarksLinkAliveWithNonNegativeCost(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.2"})

	pkt := &wire.RouterPacket{Type: wire.RouterHello2U, Timestamp: r.now()}
	r.handleHello2U(0, pkt)

	l := r.links[0]
	if !l.GotReply {
		t.Fatal("expected gotReply to be set")
	}
	if l.HelloState != 3 {
		t.Fatalf("expected helloState reset to 3, got %d", l.HelloState)
	}
	if l.Cost < 0 {
		t.Fatalf("expected non-negative cost, got %v", l.Cost)
	}
}

func TestMarkLinkDownInvalidatesRoutesOnThatLink(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.2"})
	pfx := netip.MustParsePrefix("10.0.1.0/24")
	r.routes[pfx] = &Route{Pfx: pfx, OutLink: 0, Valid: true}

	r.markLinkDown(0)

	if r.routes[pfx].Valid {
		t.Fatal("expected route on the failed link to be invalidated")
	}
}

func TestSendHellosDecrementsStrikeCounterWithoutReply(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.2"})
	r.links[0].HelloState = 1
	r.links[0].GotReply = false

	r.sendHellos()

	if r.links[0].HelloState != 0 {
		t.Fatalf("expected helloState to reach 0, got %d", r.links[0].HelloState)
	}
}
