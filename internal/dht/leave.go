package dht

import (
	"netlab/internal/logger"
	"netlab/internal/ringkey"
	"netlab/internal/wire"
)

// Leave begins the graceful-departure protocol (spec §4.1): a solo
// node exits immediately, otherwise it sends a leave packet carrying
// its own address around the ring and returns as soon as that packet is
// sent. The departure completes when the packet circles back: leaveDone
// is then closed and Run's loop exits. It is meant to be called
// from a signal handler, matching the teacher's convention of a
// dedicated goroutine invoking shutdown logic synchronously (spec §5:
// "a signal handler thread invokes leave() at process exit").
func (n *Node) Leave() {
	if n.leaving {
		return
	}
	n.leaving = true

	if n.succ.Addr == n.addr {
		n.lgr.Info("solo node leaving, nothing to hand off")
		close(n.leaveDone)
		return
	}

	n.sendTo(n.succ.Addr, &wire.DHTPacket{
		Type: wire.TypeLeave, Tag: n.newTag(), TTL: int(ringkey.Max),
		HasSender: true, SenderInfo: wire.NodeRef{Addr: n.addr, FirstHash: n.hashRange.Lo},
	})
}

// completeLeave runs once this node's own leave packet has circled
// back (spec §4.1 steps 3-5): hand the merged range and successor to
// the predecessor, tell the successor about the new predecessor, ship
// every owned key to the predecessor, then stop the serving loop.
func (n *Node) completeLeave() {
	n.sendTo(n.pred.Addr, &wire.DHTPacket{
		Type: wire.TypeUpdate, Tag: n.newTag(), TTL: 16,
		HasHashRange: true, HashRange: wire.HashRange{Lo: n.pred.FirstHash, Hi: n.hashRange.Hi},
		HasSucc: true, SuccInfo: n.succ,
	})
	n.sendTo(n.succ.Addr, &wire.DHTPacket{
		Type: wire.TypeUpdate, Tag: n.newTag(), TTL: 16,
		HasPred: true, PredInfo: n.pred,
	})

	for _, key := range n.store.keysInRange(n.hashRange.Contains, ringkey.HashKey) {
		value, _ := n.store.get(key)
		n.sendTo(n.pred.Addr, &wire.DHTPacket{
			Type: wire.TypeTransfer, Tag: n.newTag(), TTL: 16,
			Key: key, Value: value, HasValue: true,
		})
	}

	n.lgr.Info("left ring cleanly", logger.F("addr", n.addr))
	close(n.leaveDone)
}
