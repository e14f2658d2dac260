package forwarder

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"netlab/internal/logger"
)

// fakeSubstrate is an in-memory Substrate used to exercise the
// Forwarder's main loop deterministically.
type fakeSubstrate struct {
	mu    sync.Mutex
	in    []incomingItem
	sent  []sentItem
	ready map[int]bool
}

type incomingItem struct {
	pkt  Packet
	link int
}
type sentItem struct {
	pkt  Packet
	link int
}

func newFakeSubstrate() *fakeSubstrate {
	return &fakeSubstrate{ready: map[int]bool{0: true, 1: true}}
}

func (f *fakeSubstrate) Incoming() (Packet, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.in) == 0 {
		return Packet{}, 0, false
	}
	item := f.in[0]
	f.in = f.in[1:]
	return item.pkt, item.link, true
}

func (f *fakeSubstrate) Send(pkt Packet, link int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{pkt, link})
	return nil
}

func (f *fakeSubstrate) Ready(link int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready[link]
}

func (f *fakeSubstrate) push(pkt Packet, link int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, incomingItem{pkt, link})
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("parse addr %q: %v", s, err)
	}
	return a
}

func TestForwarderDeliversPacketAddressedToSelf(t *testing.T) {
	myIP := mustAddr(t, "10.0.0.1")
	sub := newFakeSubstrate()
	fw := New(myIP, sub, &logger.NopLogger{})

	sub.push(Packet{SrcAdr: mustAddr(t, "10.0.0.2"), DestAdr: myIP, Protocol: 1, TTL: 5, Payload: []byte("hi")}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go fw.Run(ctx)
	defer cancel()

	select {
	case payload := <-takeOne(fw.ToSnk()):
		if string(payload) != "hi" {
			t.Fatalf("expected payload 'hi', got %q", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered payload")
	}
}

func TestForwarderForwardsByLongestPrefixMatch(t *testing.T) {
	myIP := mustAddr(t, "10.0.0.1")
	sub := newFakeSubstrate()
	fw := New(myIP, sub, &logger.NopLogger{})
	fw.Table().AddRoute(netip.MustParsePrefix("10.0.1.0/24"), 1)

	dest := mustAddr(t, "10.0.1.5")
	sub.push(Packet{SrcAdr: mustAddr(t, "10.0.0.2"), DestAdr: dest, Protocol: 1, TTL: 5, Payload: []byte("x")}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go fw.Run(ctx)
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sub.mu.Lock()
		n := len(sub.sent)
		sub.mu.Unlock()
		if n > 0 {
			sub.mu.Lock()
			link := sub.sent[0].link
			sub.mu.Unlock()
			if link != 1 {
				t.Fatalf("expected forward on link 1, got %d", link)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("packet was never forwarded")
}

func takeOne(q interface{ TryTake() ([]byte, bool) }) chan []byte {
	ch := make(chan []byte, 1)
	go func() {
		for {
			if v, ok := q.TryTake(); ok {
				ch <- v
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	return ch
}
