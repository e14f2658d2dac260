// Package router implements the distributed path-vector Router half of
// the Forwarder/Router pair: link-liveness probing, cost smoothing,
// path-vector advertisement with loop suppression, and link-failure
// advertisement, grounded on the teacher's single-worker-goroutine
// style (one goroutine owning its tables exclusively, per spec §5).
package router

import (
	"context"
	"net/netip"
	"time"

	"netlab/internal/forwarder"
	"netlab/internal/logger"
	"netlab/internal/wire"
)

// LinkInfo tracks one neighbor link's liveness and smoothed cost (spec
// §4.3). helloState is a three-strike liveness counter; zero means the
// link is down.
type LinkInfo struct {
	PeerIP     string
	Cost       float64
	GotReply   bool
	HelloState int

	count, total, min, max float64
}

func newLinkInfo(peerIP string) *LinkInfo {
	return &LinkInfo{PeerIP: peerIP, HelloState: 3}
}

func (l *LinkInfo) recordSample(c float64) {
	l.count++
	l.total += c
	if l.count == 1 || c < l.min {
		l.min = c
	}
	if c > l.max {
		l.max = c
	}
}

// Route is one entry in the Router's routing table (spec §4.3). Valid
// false means the route is currently suppressed but retained for
// comparison against future advertisements.
type Route struct {
	Pfx       netip.Prefix
	Timestamp int64
	Cost      float64
	Path      []string
	OutLink   int
	Valid     bool
}

func pathsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Config configures a Router.
type Config struct {
	MyIP             string
	SelfPrefixes     []netip.Prefix
	HelloInterval    time.Duration
	AdvertInterval   time.Duration
	AdvertiseFailure bool
	Debug            bool
}

// Router is the single worker owning the routing table and neighbor
// link state (spec §5: "single worker thread; owns its tables
// exclusively").
type Router struct {
	cfg  Config
	fwdr *forwarder.Forwarder
	lgr  logger.Logger

	links  []*LinkInfo
	routes map[netip.Prefix]*Route

	start time.Time
}

// New builds a Router over fwdr with one LinkInfo per neighbor in
// links, indexed identically to the Forwarder's link numbering.
func New(cfg Config, fwdr *forwarder.Forwarder, neighbors []string, lgr logger.Logger) *Router {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	links := make([]*LinkInfo, len(neighbors))
	for i, peer := range neighbors {
		links[i] = newLinkInfo(peer)
	}
	return &Router{
		cfg:    cfg,
		fwdr:   fwdr,
		lgr:    lgr,
		links:  links,
		routes: make(map[netip.Prefix]*Route),
		start:  time.Now(),
	}
}

func (r *Router) now() int64 {
	return int64(time.Since(r.start).Seconds())
}

// Run drives the hello and path-vector timers and drains the
// Forwarder's incoming-control-packet queue, one action per tick (spec
// §4.3).
func (r *Router) Run(ctx context.Context) {
	helloTicker := time.NewTicker(r.cfg.HelloInterval)
	defer helloTicker.Stop()
	pvTicker := time.NewTicker(r.cfg.AdvertInterval)
	defer pvTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-helloTicker.C:
			r.sendHellos()
			continue
		case <-pvTicker.C:
			r.sendPathVecs()
			continue
		default:
		}

		if rp, ok := r.fwdr.ToRtr().TryTake(); ok {
			r.handleIncoming(rp)
			continue
		}
		time.Sleep(time.Millisecond)
	}
}

func (r *Router) handleIncoming(rp forwarder.RouterPacket) {
	pkt, err := wire.DecodeRouter(rp.Pkt.Payload)
	if err != nil {
		r.lgr.Debug("malformed router packet", logger.F("err", err))
		return
	}
	switch pkt.Type {
	case wire.RouterHello:
		r.handleHello(rp.Link, pkt)
	case wire.RouterHello2U:
		r.handleHello2U(rp.Link, pkt)
	case wire.RouterAdvert:
		r.handleAdvert(rp.Link, pkt)
	case wire.RouterFadvert:
		r.handleFadvert(pkt)
	}
}

func (r *Router) sendToLink(link int, payload string) {
	if link < 0 || link >= len(r.links) {
		return
	}
	pkt := forwarder.Packet{Protocol: 2, TTL: 64, Payload: []byte(payload)}
	_ = r.fwdr.FromRtr().Put(context.Background(), forwarder.RouterPacket{Pkt: pkt, Link: link})
}
