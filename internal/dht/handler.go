package dht

import (
	"context"
	"net"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"netlab/internal/ctxutil"
	"netlab/internal/logger"
	"netlab/internal/ringkey"
	"netlab/internal/wire"
)

// handlePacket implements the request-admission, routing and protocol
// logic of spec §4.1: decode, validate, dispatch. Every reply this
// node originates is sent back per the relay convention (§4.1
// "first-hop recording" / "reply-path fields") rather than always to
// the literal UDP source. It opens one span per packet, named after
// the packet's type and tagged with its tag and source address; a
// forwarded request's span also gets a hop count (the counter starts
// at zero for each packet here and is not carried on the wire), giving the
// router's "advisory routing, no consensus" design something to debug
// (SPEC_FULL.md tracing spans).
func (n *Node) handlePacket(raw []byte, from net.Addr) {
	p, err := wire.Decode(raw)
	if err != nil {
		n.lgr.Debug("malformed packet", logger.F("from", from.String()), logger.F("err", err))
		n.replyFailure(from.String(), 0, err.Error())
		return
	}

	ctx, cancel := ctxutil.NewContext(ctxutil.WithTrace(n.addr), ctxutil.WithHops())
	defer cancel()
	ctx, span := n.tracer.Start(ctx, string(p.Type), oteltrace.WithAttributes(
		attribute.Int("dht.tag", p.Tag),
		attribute.String("dht.from", from.String()),
	))
	defer span.End()

	p.TTL--
	if p.TTL < 0 {
		n.lgr.Debug("dropping stale packet", logger.F("type", string(p.Type)), logger.F("ttl", p.TTL))
		span.SetAttributes(attribute.Bool("dht.dropped_stale", true))
		return
	}

	// Reply-path warmup: any non-leave packet carrying senderInfo lets
	// the routing table learn about that peer passively (spec §4.1).
	if p.HasSender && p.Type != wire.TypeLeave {
		n.rt.addRoute(p.SenderInfo, n.succ)
	}

	switch p.Type {
	case wire.TypeGet, wire.TypePut:
		n.handleClientRequest(ctx, p, from)
	case wire.TypeSuccess, wire.TypeNoMatch, wire.TypeFailure:
		n.handleReply(p)
	case wire.TypeJoin:
		n.handleJoin(p, from)
	case wire.TypeLeave:
		n.handleLeave(p)
	case wire.TypeTransfer:
		n.handleTransfer(p)
	case wire.TypeUpdate:
		n.handleUpdate(p)
	default:
		n.lgr.Debug("unknown packet type", logger.F("type", string(p.Type)))
		n.replyFailure(from.String(), p.Tag, "unknown type")
	}
}

// replyTo sends a reply packet following the relay convention: if the
// originating request carried a relayAdr, the reply goes directly
// there (skipping any intermediate forwarding hops); otherwise it goes
// to whoever handed us the request directly.
func (n *Node) replyTo(req *wire.DHTPacket, directFrom string, reply *wire.DHTPacket) {
	reply.ClientAdr = req.ClientAdr
	reply.RelayAdr = req.RelayAdr
	if req.RelayAdr != "" {
		n.sendTo(req.RelayAdr, reply)
		return
	}
	n.sendTo(directFrom, reply)
}

func (n *Node) replyFailure(to string, tag int, reason string) {
	n.sendTo(to, &wire.DHTPacket{Type: wire.TypeFailure, Tag: tag, TTL: 16, Reason: reason})
}

// handleClientRequest serves get/put authoritatively, from cache, or
// forwards it onward, recording first-hop relay state as needed (spec
// §4.1 "routing decision" / "first-hop recording" / "forward target
// selection").
func (n *Node) handleClientRequest(ctx context.Context, p *wire.DHTPacket, from net.Addr) {
	h := ringkey.HashKey(p.Key)

	if n.hashRange.Contains(h) {
		n.serveLocally(p, from)
		return
	}

	if n.cache != nil && p.Type == wire.TypeGet {
		if v, ok := n.cache.get(p.Key); ok {
			reply := &wire.DHTPacket{Type: wire.TypeSuccess, Tag: p.Tag, TTL: 16, Value: v, HasValue: true}
			n.replyTo(p, from.String(), reply)
			return
		}
	}

	if p.RelayAdr == "" {
		p.RelayAdr = n.addr
		p.ClientAdr = from.String()
	}
	ctx = ctxutil.IncHops(ctx)
	oteltrace.SpanFromContext(ctx).SetAttributes(attribute.Int("dht.hops", ctxutil.HopsFromContext(ctx)))
	target, ok := n.rt.forwardTarget(h)
	if !ok {
		n.replyFailure(p.ClientAdr, p.Tag, "no route to key")
		return
	}
	n.sendTo(target.Addr, p)
}

func (n *Node) serveLocally(p *wire.DHTPacket, from net.Addr) {
	var reply *wire.DHTPacket
	switch p.Type {
	case wire.TypeGet:
		if v, ok := n.store.get(p.Key); ok {
			reply = &wire.DHTPacket{Type: wire.TypeSuccess, Tag: p.Tag, TTL: 16, Key: p.Key, Value: v, HasValue: true}
		} else {
			reply = &wire.DHTPacket{Type: wire.TypeNoMatch, Tag: p.Tag, TTL: 16, Key: p.Key}
		}
	case wire.TypePut:
		if !p.HasValue {
			// The docstring's "missing value removes the key" reading
			// conflicts with the UDP variant's separate remove command
			// (spec §9); this node rejects it explicitly instead of
			// guessing either interpretation silently.
			reply = &wire.DHTPacket{Type: wire.TypeFailure, Tag: p.Tag, TTL: 16,
				Reason: "put requires a value; use a future remove operation"}
		} else {
			n.store.put(p.Key, p.Value)
			reply = &wire.DHTPacket{Type: wire.TypeSuccess, Tag: p.Tag, TTL: 16, Key: p.Key}
		}
	}
	n.replyTo(p, from.String(), reply)
}

// handleReply is invoked only at the relay node (relayAdr == self),
// since every other node addresses its reply directly there. It
// strips the relay-only fields, optionally caches a success, and
// delivers the final reply to the real client.
func (n *Node) handleReply(p *wire.DHTPacket) {
	if p.RelayAdr != n.addr {
		n.lgr.Debug("reply addressed to a relay that isn't us, dropping", logger.F("relayAdr", p.RelayAdr))
		return
	}
	if n.cache != nil && p.Type == wire.TypeSuccess && p.HasValue {
		n.cache.put(p.Key, p.Value)
	}
	final := &wire.DHTPacket{Type: p.Type, Tag: p.Tag, TTL: 16, Value: p.Value, HasValue: p.HasValue, Reason: p.Reason}
	n.sendTo(p.ClientAdr, final)
}

// handleJoin implements the predecessor side of spec §4.1's join
// protocol: split the range, hand the new node its successor/
// predecessor, and transfer the keys that now belong to it.
func (n *Node) handleJoin(p *wire.DHTPacket, from net.Addr) {
	if !p.HasSender {
		n.replyFailure(from.String(), p.Tag, "join missing senderInfo")
		return
	}
	joinerAddr := p.SenderInfo.Addr

	predRange, joinedRange := n.hashRange.Split()
	oldSucc := n.succ

	n.hashRange = predRange
	n.succ = wire.NodeRef{Addr: joinerAddr, FirstHash: joinedRange.Lo}
	n.rt.addRoute(n.succ, n.succ)

	reply := &wire.DHTPacket{
		Type: wire.TypeSuccess, Tag: p.Tag, TTL: 16,
		HasHashRange: true, HashRange: wire.HashRange{Lo: joinedRange.Lo, Hi: joinedRange.Hi},
		HasSucc: true, SuccInfo: oldSucc,
		HasPred: true, PredInfo: wire.NodeRef{Addr: n.addr, FirstHash: n.hashRange.Lo},
	}
	n.sendTo(joinerAddr, reply)

	for _, key := range n.store.keysInRange(joinedRange.Contains, ringkey.HashKey) {
		value, _ := n.store.get(key)
		n.sendTo(joinerAddr, &wire.DHTPacket{
			Type: wire.TypeTransfer, Tag: n.newTag(), TTL: 16,
			Key: key, Value: value, HasValue: true,
		})
		n.store.delete(key)
	}

	n.lgr.Info("handled join", logger.F("joiner", joinerAddr), logger.F("myRange", n.hashRange.String()), logger.F("joinerRange", joinedRange.String()))
}

// handleLeave relays a circling leave packet toward the successor,
// pruning the departing node from the local routing table, or
// completes the departing node's own leave protocol once the packet
// has circled the whole ring back to it (spec §4.1 step 2).
func (n *Node) handleLeave(p *wire.DHTPacket) {
	if !p.HasSender {
		return
	}
	if p.SenderInfo.Addr == n.addr {
		n.completeLeave()
		return
	}
	n.rt.removeRoute(p.SenderInfo.Addr)
	n.sendTo(n.succ.Addr, p)
}

// handleTransfer accepts (key,value) only if it now falls in this
// node's range; a stale transfer after further ring changes is
// silently dropped (spec §4.1).
func (n *Node) handleTransfer(p *wire.DHTPacket) {
	if !p.HasValue {
		return
	}
	h := ringkey.HashKey(p.Key)
	if !n.hashRange.Contains(h) {
		n.lgr.Debug("dropping stale transfer", logger.F("key", p.Key))
		return
	}
	n.store.put(p.Key, p.Value)
}

// handleUpdate applies any subset of {predInfo, succInfo, hashRange}
// the packet carries, inserting a fresh succInfo into the routing
// table (spec §4.1 "update protocol").
func (n *Node) handleUpdate(p *wire.DHTPacket) {
	if p.HasHashRange {
		n.hashRange = ringkey.Range{Lo: p.HashRange.Lo, Hi: p.HashRange.Hi}
	}
	if p.HasPred {
		n.pred = p.PredInfo
	}
	if p.HasSucc {
		n.succ = p.SuccInfo
		n.rt.addRoute(n.succ, n.succ)
	}
	n.lgr.Debug("applied update", logger.F("hashRange", n.hashRange.String()), logger.F("succ", n.succ.String()), logger.F("pred", n.pred.String()))
}
