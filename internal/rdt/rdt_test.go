package rdt

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"netlab/internal/queue"
)

// lossyLink connects two Conns back to back, dropping each direction's
// packets independently at lossRate and never reordering within a
// direction -- this is the minimal fake needed to exercise the
// sliding-window / retransmission behavior spec §8 scenario 6
// describes ("Substrate drops 30% of packets in each direction").
type lossyLink struct {
	mu       sync.Mutex
	inbox    []Packet
	lossRate float64
	rnd      *rand.Rand
}

func newLossyLink(lossRate float64, seed int64) *lossyLink {
	return &lossyLink{lossRate: lossRate, rnd: rand.New(rand.NewSource(seed))}
}

func (l *lossyLink) deliver(pkt Packet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rnd.Float64() < l.lossRate {
		return
	}
	l.inbox = append(l.inbox, pkt)
}

func (l *lossyLink) take() (Packet, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inbox) == 0 {
		return Packet{}, false
	}
	p := l.inbox[0]
	l.inbox = l.inbox[1:]
	return p, true
}

// outbound and inbound abstract over a plain lossyLink or a wrapper
// like dropNth, so a test can inject a one-shot drop on top of an
// otherwise lossless link.
type outbound interface{ deliver(Packet) }
type inbound interface{ take() (Packet, bool) }

// fakeSubstrate is one endpoint's view of a lossyLink pair: outgoing
// packets are handed to out, incoming ones are drained from in.
type fakeSubstrate struct {
	out outbound
	in  inbound
}

func (f *fakeSubstrate) Incoming() (Packet, bool) { return f.in.take() }
func (f *fakeSubstrate) Send(pkt Packet) error     { f.out.deliver(pkt); return nil }
func (f *fakeSubstrate) Ready() bool               { return true }

func newConnPair(t *testing.T, cfg Config, lossRate float64) (*Conn, *Conn) {
	t.Helper()
	ab := newLossyLink(lossRate, 1)
	ba := newLossyLink(lossRate, 2)
	subA := &fakeSubstrate{out: ab, in: ba}
	subB := &fakeSubstrate{out: ba, in: ab}
	return New(cfg, subA, nil), New(cfg, subB, nil)
}

// TestInOrderDeliveryUnderLoss sends 1000 payloads from A to B over a
// link that drops 30% of packets each direction and checks every
// payload arrives, in order, exactly once (spec §8 scenario 6).
func TestInOrderDeliveryUnderLoss(t *testing.T) {
	cfg := Config{WSize: 8, Timeout: 20 * time.Millisecond, EnableDupAckRetx: true}
	a, b := newConnPair(t, cfg, 0.3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	go b.Run(ctx)

	const n = 1000
	go func() {
		for i := 0; i < n; i++ {
			_ = a.FromApp().Put(context.Background(), []byte{byte(i), byte(i >> 8)})
		}
	}()

	deadline := time.After(30 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-deadline:
			t.Fatalf("timed out after receiving %d/%d payloads", i, n)
		default:
		}
		payload, err := b.ToApp().Take(context.Background())
		if err != nil {
			t.Fatalf("take %d: %v", i, err)
		}
		got := int(payload[0]) | int(payload[1])<<8
		if got != i {
			t.Fatalf("payload %d arrived out of order, got %d", i, got)
		}
	}
}

// TestDupAckFastRetransmit confirms that losing exactly one packet in
// a otherwise-reliable link triggers a duplicate-ACK-driven
// retransmission of that packet instead of waiting for the timer,
// which we check indirectly by using a very long timeout -- delivery
// completing at all proves fast retransmit fired.
func TestDupAckFastRetransmit(t *testing.T) {
	cfg := Config{WSize: 8, Timeout: time.Hour, EnableDupAckRetx: true}
	ab := newLossyLink(0, 1)
	ba := newLossyLink(0, 2)

	// drop the second packet: the receiver only ACKs out-of-order data
	// once it has accepted one packet in order.
	dropOnce := &dropNth{n: 2, link: ab}
	subA := &fakeSubstrate{out: dropOnce, in: ba}
	subB := &fakeSubstrate{out: ba, in: ab}

	a := New(cfg, subA, nil)
	b := New(cfg, subB, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	go b.Run(ctx)

	const n = 20
	go func() {
		for i := 0; i < n; i++ {
			_ = a.FromApp().Put(context.Background(), []byte{byte(i)})
		}
	}()

	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for fast retransmit to recover payload %d", i)
		default:
		}
		payload, err := b.ToApp().Take(context.Background())
		if err != nil {
			t.Fatalf("take %d: %v", i, err)
		}
		if int(payload[0]) != i {
			t.Fatalf("payload %d out of order, got %d", i, payload[0])
		}
	}
}

// dropNth drops the n-th packet ever sent through it (1-indexed), then
// behaves like a plain lossyLink with zero loss.
type dropNth struct {
	mu    sync.Mutex
	count int
	n     int
	link  *lossyLink
}

func (d *dropNth) deliver(pkt Packet) {
	d.mu.Lock()
	d.count++
	drop := d.count == d.n
	d.mu.Unlock()
	if drop {
		return
	}
	d.link.deliver(pkt)
}

func (d *dropNth) take() (Packet, bool) { return d.link.take() }

func TestWindowInvariant(t *testing.T) {
	cfg := DefaultConfig()
	space := cfg.seqSpace()
	c := &Conn{cfg: cfg, sendBuf: make([]*Packet, space), recvBuf: make([]*Packet, space), lastRcvd: -1}
	sub := &fakeSubstrate{out: newLossyLink(0, 1), in: newLossyLink(0, 2)}
	c.sub = sub
	c.fromApp = queue.New[[]byte](queue.DefaultCapacity)
	c.toApp = queue.New[[]byte](queue.DefaultCapacity)

	for i := 0; i < cfg.WSize; i++ {
		if d := diff(c.sendSeqNum, c.sendBase, space); d > cfg.WSize {
			t.Fatalf("window invariant violated before send %d: diff=%d", i, d)
		}
		c.fromApp.Put(context.Background(), []byte{byte(i)})
		if !c.trySend() {
			t.Fatalf("trySend %d unexpectedly blocked", i)
		}
	}
	if d := diff(c.sendSeqNum, c.sendBase, space); d != cfg.WSize {
		t.Fatalf("expected a full window (diff=wSize), got diff=%d", d)
	}
	c.fromApp.Put(context.Background(), []byte{99})
	if c.trySend() {
		t.Fatalf("trySend should refuse to exceed the window")
	}
}
