// Package rdt implements the Go-Back-N reliable data transport: a
// sliding-window sender and in-order receiver running as a single
// worker goroutine over an unreliable Substrate, grounded on the
// teacher's single-worker-goroutine ownership style (spec §5 "single
// worker thread; both sending and receiving logic interleaved") and on
// the Forwarder's bounded-queue application interface (spec §4.2) for
// how an upper layer feeds and drains payloads.
package rdt

import (
	"context"
	"time"

	"netlab/internal/logger"
	"netlab/internal/queue"
)

// packetType distinguishes a data segment from its acknowledgment on
// the wire (spec §4: "RDT packet. {type in {0=data,1=ack}, seqNum: 15-bit, payload}").
type packetType int

const (
	typeData packetType = 0
	typeAck  packetType = 1
)

// Packet is the opaque unit the Substrate carries end-to-end.
type Packet struct {
	Type    packetType
	SeqNum  int
	Payload []byte
}

// Substrate is the unreliable datagram transport underneath the
// transport, treated as an external collaborator (spec §1, GLOSSARY
// "Substrate"): Incoming drains one arrived packet if any, Send
// transmits one, Ready reports whether a send would currently succeed.
type Substrate interface {
	Incoming() (Packet, bool)
	Send(pkt Packet) error
	Ready() bool
}

// Config tunes the window size and retransmission timeout (spec §4.4,
// §5 "RDT retransmission deadline is configured in seconds, stored in
// nanoseconds").
type Config struct {
	WSize              int           // sliding window size
	Timeout            time.Duration // retransmit deadline
	EnableDupAckRetx   bool          // fast retransmit on 4 duplicate ACKs
}

// DefaultConfig returns a Config with the spec's worked example values
// (wSize=8) and a conservative retransmit timeout.
func DefaultConfig() Config {
	return Config{WSize: 8, Timeout: 300 * time.Millisecond, EnableDupAckRetx: true}
}

// seqSpace is 2*wSize, the modulus every sequence number and ACK
// arithmetic operation in this package is taken under (spec §4
// "Sequence space size is 2*wSize").
func (c Config) seqSpace() int { return 2 * c.WSize }

// diff is the clockwise distance from b to a modulo m (GLOSSARY
// "Clockwise distance").
func diff(a, b, m int) int {
	d := (a - b) % m
	if d < 0 {
		d += m
	}
	return d
}

func decr(a, m int) int {
	d := a - 1
	if d < 0 {
		d += m
	}
	return d
}

func incr(a, m int) int {
	return (a + 1) % m
}

// Conn is one Go-Back-N endpoint: a sliding-window sender and an
// in-order receiver sharing a single worker loop (spec §4.4).
type Conn struct {
	cfg Config
	sub Substrate
	lgr logger.Logger

	sendBuf    []*Packet
	sendBase   int
	sendSeqNum int

	recvBuf   []*Packet
	recvBase  int
	expSeqNum int
	lastRcvd  int // -1 means "nothing received yet"

	dupAcks      int
	enableDupAck bool

	sendAgain  time.Time
	stopTimer  bool

	fromApp *queue.Queue[[]byte]
	toApp   *queue.Queue[[]byte]

	quit chan struct{}
	done chan struct{}
}

// New builds a Conn over sub with the given Config. Call Run in its
// own goroutine to start the worker loop; feed outgoing payloads via
// FromApp and drain delivered ones via ToApp.
func New(cfg Config, sub Substrate, lgr logger.Logger) *Conn {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	if cfg.WSize <= 0 {
		cfg = DefaultConfig()
	}
	space := cfg.seqSpace()
	return &Conn{
		cfg:      cfg,
		sub:      sub,
		lgr:      lgr,
		sendBuf:  make([]*Packet, space),
		recvBuf:  make([]*Packet, space),
		lastRcvd: -1,
		enableDupAck: true,
		fromApp:  queue.New[[]byte](queue.DefaultCapacity),
		toApp:    queue.New[[]byte](queue.DefaultCapacity),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// FromApp is the queue the application enqueues outgoing payloads on.
func (c *Conn) FromApp() *queue.Queue[[]byte] { return c.fromApp }

// ToApp is the queue the application dequeues in-order delivered
// payloads from.
func (c *Conn) ToApp() *queue.Queue[[]byte] { return c.toApp }

// Stop requests the worker loop to quit once the send buffer drains
// (spec §5 "Shutdown: ... the loop continues until sendBuf[sendBase]
// is empty"), then blocks until it has exited.
func (c *Conn) Stop() {
	close(c.quit)
	<-c.done
}

// Run drives the main loop until Stop is called and the window has
// drained, taking at most one action per tick in the priority order of
// spec §4.4.
func (c *Conn) Run(ctx context.Context) {
	defer close(c.done)
	for {
		quitting := c.quitRequested()
		if quitting && c.windowEmpty() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.tryDeliver() {
			continue
		}
		if c.tryIncoming() {
			continue
		}
		if c.tryTimeout() {
			continue
		}
		if !quitting && c.trySend() {
			continue
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *Conn) quitRequested() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

func (c *Conn) windowEmpty() bool {
	return c.sendBuf[c.sendBase] == nil
}

// tryDeliver implements priority 1: if the next in-order slot is
// filled, hand it to the application and advance recvBase.
func (c *Conn) tryDeliver() bool {
	p := c.recvBuf[c.recvBase]
	if p == nil {
		return false
	}
	_ = c.toApp.Put(context.Background(), p.Payload)
	c.recvBuf[c.recvBase] = nil
	c.recvBase = incr(c.recvBase, c.cfg.seqSpace())
	return true
}

// tryIncoming implements priority 2: handle one arrived substrate
// packet, dispatching on whether it is data or an ACK.
func (c *Conn) tryIncoming() bool {
	pkt, ok := c.sub.Incoming()
	if !ok {
		return false
	}
	if pkt.Type == typeData {
		c.handleData(pkt)
	} else {
		c.handleAck(pkt)
	}
	return true
}

func (c *Conn) handleData(pkt Packet) {
	space := c.cfg.seqSpace()
	if pkt.SeqNum == c.expSeqNum {
		cp := pkt
		c.recvBuf[c.expSeqNum] = &cp
		c.lastRcvd = c.expSeqNum
		old := c.expSeqNum
		c.expSeqNum = incr(c.expSeqNum, space)
		c.sendAck(old)
		c.enableDupAck = true
		return
	}
	if c.lastRcvd != -1 {
		c.sendAck(c.lastRcvd)
	}
}

func (c *Conn) sendAck(seq int) {
	_ = c.sub.Send(Packet{Type: typeAck, SeqNum: seq})
}

func (c *Conn) handleAck(pkt Packet) {
	space := c.cfg.seqSpace()

	if pkt.SeqNum == decr(c.sendBase, space) {
		c.dupAcks++
		if c.dupAcks >= 4 && c.cfg.EnableDupAckRetx && c.enableDupAck {
			c.lgr.Debug("fast retransmit", logger.F("sendBase", c.sendBase))
			c.retransmitWindow()
			c.resetTimer()
			c.dupAcks = 0
			c.enableDupAck = false
		}
		return
	}

	if diff(pkt.SeqNum, c.sendBase, space) < c.cfg.WSize && c.sendBuf[pkt.SeqNum] != nil {
		for c.sendBase != incr(pkt.SeqNum, space) {
			c.sendBuf[c.sendBase] = nil
			c.sendBase = incr(c.sendBase, space)
		}
		c.dupAcks = 0
		if c.windowEmpty() {
			c.stopTimer = true
		} else {
			c.resetTimer()
		}
	}
}

// retransmitWindow resends every in-flight packet from sendBase to
// sendSeqNum-1, spinning 1ms at a time while the substrate isn't ready
// (spec §4.4: "waiting 1 ms between stalls if substrate not ready").
func (c *Conn) retransmitWindow() {
	space := c.cfg.seqSpace()
	for seq := c.sendBase; seq != c.sendSeqNum; seq = incr(seq, space) {
		pkt := c.sendBuf[seq]
		if pkt == nil {
			continue
		}
		for !c.sub.Ready() {
			time.Sleep(time.Millisecond)
		}
		_ = c.sub.Send(*pkt)
	}
}

// tryTimeout implements priority 3: retransmit the whole window if the
// retransmission deadline has passed.
func (c *Conn) tryTimeout() bool {
	if c.stopTimer || c.windowEmpty() {
		return false
	}
	if time.Now().Before(c.sendAgain) {
		return false
	}
	c.lgr.Debug("retransmit timeout", logger.F("sendBase", c.sendBase))
	c.retransmitWindow()
	c.resetTimer()
	c.enableDupAck = true
	return true
}

func (c *Conn) resetTimer() {
	c.sendAgain = time.Now().Add(c.cfg.Timeout)
	c.stopTimer = false
}

// trySend implements priority 4: if the application has a payload
// waiting, the substrate is ready, and the window isn't full, send it.
func (c *Conn) trySend() bool {
	space := c.cfg.seqSpace()
	if diff(c.sendSeqNum, c.sendBase, space) >= c.cfg.WSize {
		return false
	}
	payload, ok := c.fromApp.Peek()
	if !ok {
		return false
	}
	if !c.sub.Ready() {
		return false
	}
	c.fromApp.TryTake()

	wasEmpty := c.windowEmpty()
	pkt := Packet{Type: typeData, SeqNum: c.sendSeqNum, Payload: payload}
	cp := pkt
	c.sendBuf[c.sendSeqNum] = &cp
	if wasEmpty {
		c.resetTimer()
	}
	c.sendSeqNum = incr(c.sendSeqNum, space)
	_ = c.sub.Send(pkt)
	c.stopTimer = false
	return true
}
