package router

import (
	"netlab/internal/logger"
	"netlab/internal/wire"
)

// sendHellos runs on the 1s hello timer (spec §4.3). For each link
// that is still up but has not replied since the previous round, it
// advances the three-strike failure logic, then emits a fresh hello
// probe on every link.
func (r *Router) sendHellos() {
	for i, l := range r.links {
		if !l.GotReply && l.HelloState > 0 {
			l.HelloState--
			if l.HelloState == 0 {
				r.markLinkDown(i)
			}
		}
		l.GotReply = false
		r.sendToLink(i, wire.EncodeHello(wire.RouterHello, r.now()))
	}
}

// markLinkDown suppresses every route routed through link and
// optionally advertises the failure, invoked once a link's hello
// counter bottoms out (spec §4.3).
func (r *Router) markLinkDown(link int) {
	changed := false
	for _, rt := range r.routes {
		if rt.OutLink == link && rt.Valid {
			rt.Valid = false
			changed = true
		}
	}
	if r.cfg.Debug && changed {
		r.printTable()
	}
	if r.cfg.AdvertiseFailure {
		r.sendFailureAdvert(link)
	}
}

func (r *Router) handleHello(link int, pkt *wire.RouterPacket) {
	r.sendToLink(link, wire.EncodeHello(wire.RouterHello2U, pkt.Timestamp))
}

func (r *Router) handleHello2U(link int, pkt *wire.RouterPacket) {
	if link < 0 || link >= len(r.links) {
		return
	}
	l := r.links[link]
	rtt := float64(r.now()-pkt.Timestamp) / 2
	if rtt < 0 {
		rtt = 0
	}
	if l.count == 0 {
		l.Cost = rtt
	} else {
		l.Cost = 0.9*l.Cost + 0.1*rtt
	}
	l.recordSample(rtt)
	l.GotReply = true
	l.HelloState = 3
	r.lgr.Debug("hello2u", logger.F("link", link), logger.F("cost", l.Cost))
}
