// Package forwarder implements the packet Forwarder half of the
// Forwarder/Router pair: it owns the forwarding table and moves
// packets between the substrate, the local application, and the
// Router, grounded on the teacher's worker-loop style (ticker-driven
// goroutine polling bounded queues) but built around the spec's own
// substrate/forwarding-table contract rather than gRPC.
package forwarder

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/gaissmai/bart"

	"netlab/internal/logger"
	"netlab/internal/queue"
)

// Packet is the overlay datagram the Forwarder moves between the
// substrate, the application queues, and the Router.
type Packet struct {
	SrcAdr   netip.Addr
	DestAdr  netip.Addr
	Protocol int // 1 = application payload, 2 = router control packet
	TTL      int
	Payload  []byte
}

// RouterPacket pairs a Packet with the link it arrived on or should be
// sent out on, the shape carried by the fromRtr/toRtr queues (spec
// §4.2).
type RouterPacket struct {
	Pkt  Packet
	Link int
}

// Substrate is the lossy datagram transport underneath the overlay,
// treated as an external collaborator with a narrow contract (spec §1
// Non-goals): incoming packets arrive tagged with the link they came
// in on, sends are conditional on per-link readiness.
type Substrate interface {
	Incoming() (Packet, int, bool)
	Send(pkt Packet, link int) error
	Ready(link int) bool
}

// Table is the Forwarder's longest-prefix-match forwarding table,
// backed by github.com/gaissmai/bart for O(log n) lookups, guarded by
// a single monitor per spec §5 ("forwarding table is guarded by a
// single monitor held during addRoute, lookup, getLink, printTable").
type Table struct {
	mu  sync.Mutex
	bt  bart.Table[int]
	lgr logger.Logger
}

// NewTable returns a Table whose default route (0.0.0.0/0) points at
// link 0, matching the spec's "initially to link 0" default.
func NewTable(lgr logger.Logger) *Table {
	t := &Table{lgr: lgr}
	t.bt.Insert(netip.PrefixFrom(netip.IPv4Unspecified(), 0), 0)
	return t
}

// AddRoute inserts prefix->link, replacing any existing link for that
// exact prefix (spec §4.2: "if the prefix already appears, replace its
// link in place; else append" -- the trie's Insert already has this
// replace-or-create semantics keyed by exact prefix).
func (t *Table) AddRoute(prefix netip.Prefix, link int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bt.Insert(prefix, link)
}

// Lookup returns the link of the longest prefix matching ip.
func (t *Table) Lookup(ip netip.Addr) (link int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bt.Lookup(ip)
}

// PrintTable logs every forwarding entry, mirroring the debug table
// dumps the Router triggers on a routing change.
func (t *Table) PrintTable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pfx, link := range t.bt.All4() {
		t.lgr.Info("forwarding entry", logger.F("prefix", pfx.String()), logger.F("link", link))
	}
}

// Forwarder is the main worker described in spec §4.2: one goroutine
// draining the substrate, the Router's outgoing queue, and the local
// application's outgoing queue, one action per tick.
type Forwarder struct {
	myIP netip.Addr
	sub  Substrate
	tbl  *Table
	lgr  logger.Logger

	fromSrc *queue.Queue[[]byte]
	toSnk   *queue.Queue[[]byte]
	fromRtr *queue.Queue[RouterPacket]
	toRtr   *queue.Queue[RouterPacket]
}

// New builds a Forwarder over sub, addressed as myIP, with the four
// bounded queues spec §4.2 requires.
func New(myIP netip.Addr, sub Substrate, lgr logger.Logger) *Forwarder {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Forwarder{
		myIP:    myIP,
		sub:     sub,
		tbl:     NewTable(lgr),
		lgr:     lgr,
		fromSrc: queue.New[[]byte](queue.DefaultCapacity),
		toSnk:   queue.New[[]byte](queue.DefaultCapacity),
		fromRtr: queue.New[RouterPacket](queue.DefaultCapacity),
		toRtr:   queue.New[RouterPacket](queue.DefaultCapacity),
	}
}

// Table exposes the forwarding table so the Router can update it when
// path-vector advertisements change the best outgoing link.
func (f *Forwarder) Table() *Table { return f.tbl }

// FromSrc is the queue the application enqueues outgoing payloads on.
func (f *Forwarder) FromSrc() *queue.Queue[[]byte] { return f.fromSrc }

// ToSnk is the queue the application dequeues delivered payloads from.
func (f *Forwarder) ToSnk() *queue.Queue[[]byte] { return f.toSnk }

// ToRtr is the queue the Router dequeues inbound control packets from.
func (f *Forwarder) ToRtr() *queue.Queue[RouterPacket] { return f.toRtr }

// FromRtr is the queue the Router enqueues outgoing control packets on.
func (f *Forwarder) FromRtr() *queue.Queue[RouterPacket] { return f.fromRtr }

// Run executes the main loop until ctx is canceled: each tick tries,
// in priority order, (1) an incoming substrate packet, (2) a queued
// Router packet whose link is ready, (3) a queued application payload
// -- taking at most one action, sleeping 1ms when none is available
// (spec §4.2).
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if f.tryIncoming() {
			continue
		}
		if f.tryFromRouter() {
			continue
		}
		if f.tryFromApplication() {
			continue
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *Forwarder) tryIncoming() bool {
	pkt, link, ok := f.sub.Incoming()
	if !ok {
		return false
	}
	pkt.TTL--

	if pkt.DestAdr == f.myIP {
		switch pkt.Protocol {
		case 1:
			_ = f.toSnk.Put(context.Background(), pkt.Payload)
		case 2:
			_ = f.toRtr.Put(context.Background(), RouterPacket{Pkt: pkt, Link: link})
		}
		return true
	}
	if pkt.TTL <= 0 {
		return true
	}
	outLink, found := f.tbl.Lookup(pkt.DestAdr)
	if !found || !f.sub.Ready(outLink) {
		return true
	}
	_ = f.sub.Send(pkt, outLink)
	return true
}

func (f *Forwarder) tryFromRouter() bool {
	rp, ok := f.fromRtr.Peek()
	if !ok {
		return false
	}
	if !f.sub.Ready(rp.Link) {
		return false
	}
	f.fromRtr.TryTake() // consume the peeked item
	_ = f.sub.Send(rp.Pkt, rp.Link)
	return true
}

func (f *Forwarder) tryFromApplication() bool {
	payload, ok := f.fromSrc.Peek()
	if !ok {
		return false
	}
	// destination is pre-parsed application-layer framing: the first
	// line of payload is the destination address, matching the
	// teacher's SrcSnk convention of a textual header (out of scope
	// per spec §1, so only the minimal parse needed to build the
	// envelope lives here).
	dest, body := parseDestHeader(payload)
	pkt := Packet{SrcAdr: f.myIP, DestAdr: dest, Protocol: 1, TTL: 100, Payload: body}
	outLink, found := f.tbl.Lookup(dest)
	if !found || !f.sub.Ready(outLink) {
		return false
	}
	f.fromSrc.TryTake() // consume the peeked item
	_ = f.sub.Send(pkt, outLink)
	return true
}

func parseDestHeader(payload []byte) (netip.Addr, []byte) {
	for i, b := range payload {
		if b == '\n' {
			addr, err := netip.ParseAddr(string(payload[:i]))
			if err != nil {
				return netip.Addr{}, payload
			}
			return addr, payload[i+1:]
		}
	}
	return netip.Addr{}, payload
}
