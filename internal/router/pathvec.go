package router

import (
	"net/netip"

	"netlab/internal/logger"
	"netlab/internal/wire"
)

// sendPathVecs runs on the 10s advertisement timer (spec §4.3): for
// each self-originated prefix, advertise cost 0 with a path of just
// this router's own IP to every live neighbor.
func (r *Router) sendPathVecs() {
	for _, pfx := range r.cfg.SelfPrefixes {
		route := r.routes[pfx]
		for i, l := range r.links {
			if l.HelloState == 0 {
				continue
			}
			if route != nil && !route.Valid {
				continue
			}
			r.sendToLink(i, wire.EncodeAdvert(wire.PathVec{
				Prefix: pfx, Timestamp: r.now(), Cost: 0, Path: []string{r.cfg.MyIP},
			}))
		}
	}
}

// containsIP reports whether ip appears anywhere in path, the loop
// check applied to both path-vector and link-failure advertisements.
func containsIP(path []string, ip string) bool {
	for _, p := range path {
		if p == ip {
			return true
		}
	}
	return false
}

func (r *Router) handleAdvert(arrivingLink int, pkt *wire.RouterPacket) {
	pv := pkt.PathVec
	if pv == nil {
		return
	}
	if containsIP(pv.Path, r.cfg.MyIP) {
		r.lgr.Debug("discarding advert containing our own IP (loop)", logger.F("prefix", pv.Prefix.String()))
		return
	}

	var linkCost float64
	if arrivingLink >= 0 && arrivingLink < len(r.links) {
		linkCost = r.links[arrivingLink].Cost
	}
	candidate := &Route{
		Pfx:       pv.Prefix,
		Timestamp: pv.Timestamp,
		Cost:      linkCost + pv.Cost,
		Path:      append(append([]string{}, pv.Path...)),
		OutLink:   arrivingLink,
		Valid:     true,
	}

	existing, found := r.routes[pv.Prefix]
	if !found {
		r.routes[pv.Prefix] = candidate
		r.fwdr.Table().AddRoute(pv.Prefix, arrivingLink)
		r.propagateAdvert(pv.Prefix, candidate, arrivingLink)
		return
	}

	changed, pathChanged := r.applyUpdateRule(existing, candidate)
	if !changed {
		return
	}
	if pathChanged && r.cfg.Debug {
		r.printTable()
	}
	r.propagateAdvert(pv.Prefix, existing, arrivingLink)
}

// applyUpdateRule implements the four-rule precedence from spec §4.3,
// mutating existing in place and reporting whether anything changed and
// whether the path itself changed -- the debug dump only fires on the
// latter (spec §4.3: print "if the path changed", not on every refresh).
// The new link being down is an unconditional veto.
func (r *Router) applyUpdateRule(existing, candidate *Route) (changed, pathChanged bool) {
	if candidate.OutLink >= 0 && candidate.OutLink < len(r.links) && r.links[candidate.OutLink].HelloState == 0 {
		return false, false
	}

	switch {
	case !existing.Valid && candidate.Valid && !pathsEqual(existing.Path, candidate.Path):
		linkChanged := existing.OutLink != candidate.OutLink
		replaceRoute(existing, candidate)
		if linkChanged {
			r.fwdr.Table().AddRoute(existing.Pfx, existing.OutLink)
		}
		return true, true
	case pathsEqual(existing.Path, candidate.Path) && existing.OutLink == candidate.OutLink:
		existing.Timestamp = candidate.Timestamp
		existing.Cost = candidate.Cost
		return true, false
	case candidate.Cost < 0.9*existing.Cost || candidate.Timestamp > existing.Timestamp+20 || (existing.OutLink >= 0 && existing.OutLink < len(r.links) && r.links[existing.OutLink].HelloState == 0):
		changedPath := !pathsEqual(existing.Path, candidate.Path)
		linkChanged := existing.OutLink != candidate.OutLink
		replaceRoute(existing, candidate)
		if linkChanged {
			r.fwdr.Table().AddRoute(existing.Pfx, existing.OutLink)
		}
		return true, changedPath
	default:
		return false, false
	}
}

func replaceRoute(existing, candidate *Route) {
	pfx := existing.Pfx
	*existing = *candidate
	existing.Pfx = pfx
}

// propagateAdvert re-advertises route to every neighbor except the
// one it arrived on, with this router's IP put in front of the stored
// path so the originator stays last (spec §4.3).
func (r *Router) propagateAdvert(pfx netip.Prefix, route *Route, exceptLink int) {
	path := append([]string{r.cfg.MyIP}, route.Path...)
	for i := range r.links {
		if i == exceptLink {
			continue
		}
		r.sendToLink(i, wire.EncodeAdvert(wire.PathVec{
			Prefix: pfx, Timestamp: route.Timestamp, Cost: route.Cost, Path: path,
		}))
	}
}

// sendFailureAdvert announces that link has gone down to every other
// neighbor (spec §4.3).
func (r *Router) sendFailureAdvert(link int) {
	if link < 0 || link >= len(r.links) {
		return
	}
	toIP := r.links[link].PeerIP
	r.propagateFadvert(wire.LinkFail{
		FromIP: r.cfg.MyIP, ToIP: toIP, Timestamp: r.now(), Path: []string{r.cfg.MyIP},
	}, link)
}

func (r *Router) handleFadvert(pkt *wire.RouterPacket) {
	lf := pkt.LinkFail
	if lf == nil {
		return
	}
	if containsIP(lf.Path, r.cfg.MyIP) {
		return
	}

	changed := false
	for _, rt := range r.routes {
		if !adjacentInPath(rt.Path, lf.FromIP, lf.ToIP) {
			continue
		}
		rt.Valid = false
		rt.Timestamp = lf.Timestamp
		changed = true
	}
	if !changed {
		return
	}
	if r.cfg.Debug {
		r.printTable()
	}
	r.propagateFadvert(wire.LinkFail{
		FromIP: lf.FromIP, ToIP: lf.ToIP, Timestamp: lf.Timestamp, Path: append(append([]string{}, lf.Path...), r.cfg.MyIP),
	}, -1)
}

func adjacentInPath(path []string, fromIP, toIP string) bool {
	for i := 0; i+1 < len(path); i++ {
		if (path[i] == fromIP && path[i+1] == toIP) || (path[i] == toIP && path[i+1] == fromIP) {
			return true
		}
	}
	return false
}

func (r *Router) propagateFadvert(lf wire.LinkFail, exceptLink int) {
	for i := range r.links {
		if i == exceptLink {
			continue
		}
		r.sendToLink(i, wire.EncodeFadvert(lf))
	}
}

// printTable logs the current routing table, used for the debug dumps
// triggered whenever a route's path or validity changes.
func (r *Router) printTable() {
	for _, rt := range r.routes {
		r.lgr.Info("route",
			logger.F("prefix", rt.Pfx.String()),
			logger.F("cost", rt.Cost),
			logger.F("path", rt.Path),
			logger.F("outLink", rt.OutLink),
			logger.F("valid", rt.Valid),
		)
	}
}
