// Package netsub is a concrete UDP-backed implementation of the
// overlay Substrate the Forwarder runs on (spec §1 GLOSSARY
// "Substrate: ... an abstract lossy datagram transport underneath the
// overlay ... Exposes send, receive, incoming, ready"). Spec §1 treats
// Substrate as an external narrow-contract collaborator and leaves its
// concrete transport unspecified; this package supplies the one a
// runnable binary needs, grounded on the teacher's plain net.PacketConn
// socket handling in cmd/node/main.go.
package netsub

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"netlab/internal/forwarder"
	"netlab/internal/logger"
)

// headerLen is the fixed-size envelope netsub wraps around every
// forwarder.Packet before it goes out over the wire: 4 bytes source
// IPv4, 4 bytes destination IPv4, 2 bytes protocol, 2 bytes TTL.
const headerLen = 12

func encode(pkt forwarder.Packet) []byte {
	buf := make([]byte, headerLen+len(pkt.Payload))
	src := pkt.SrcAdr.As4()
	dst := pkt.DestAdr.As4()
	copy(buf[0:4], src[:])
	copy(buf[4:8], dst[:])
	binary.BigEndian.PutUint16(buf[8:10], uint16(pkt.Protocol))
	binary.BigEndian.PutUint16(buf[10:12], uint16(int16(pkt.TTL)))
	copy(buf[headerLen:], pkt.Payload)
	return buf
}

func decode(raw []byte) (forwarder.Packet, error) {
	if len(raw) < headerLen {
		return forwarder.Packet{}, fmt.Errorf("netsub: short packet (%d bytes)", len(raw))
	}
	var src, dst [4]byte
	copy(src[:], raw[0:4])
	copy(dst[:], raw[4:8])
	protocol := int(binary.BigEndian.Uint16(raw[8:10]))
	ttl := int(int16(binary.BigEndian.Uint16(raw[10:12])))
	payload := make([]byte, len(raw)-headerLen)
	copy(payload, raw[headerLen:])
	return forwarder.Packet{
		SrcAdr:   netip.AddrFrom4(src),
		DestAdr:  netip.AddrFrom4(dst),
		Protocol: protocol,
		TTL:      ttl,
		Payload:  payload,
	}, nil
}

type received struct {
	pkt  forwarder.Packet
	link int
}

// UDP is a multi-link forwarder.Substrate over real UDP sockets: each
// configured neighbor address is one numbered link, matching the
// Forwarder's link-indexed forwarding table (spec §4.2).
type UDP struct {
	conn  *net.UDPConn
	links []*net.UDPAddr
	byKey map[string]int

	in  chan received
	lgr logger.Logger
}

// NewUDP opens a UDP socket at bindAddr and wires one link per entry
// in neighbors (in order, so link 0 is neighbors[0]).
func NewUDP(bindAddr string, neighbors []string, lgr logger.Logger) (*UDP, error) {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	laddr, err := net.ResolveUDPAddr("udp4", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind addr: %w", err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	u := &UDP{
		conn:  conn,
		links: make([]*net.UDPAddr, len(neighbors)),
		byKey: make(map[string]int, len(neighbors)),
		in:    make(chan received, 4096),
		lgr:   lgr,
	}
	for i, n := range neighbors {
		ra, err := net.ResolveUDPAddr("udp4", n)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve neighbor %q: %w", n, err)
		}
		u.links[i] = ra
		u.byKey[ra.String()] = i
	}
	go u.readLoop()
	return u, nil
}

func (u *UDP) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			return // conn closed
		}
		pkt, err := decode(buf[:n])
		if err != nil {
			u.lgr.Debug("dropping malformed overlay packet", logger.F("from", from.String()), logger.F("err", err))
			continue
		}
		link, ok := u.byKey[from.String()]
		if !ok {
			link = -1
		}
		select {
		case u.in <- received{pkt: pkt, link: link}:
		default:
			u.lgr.Warn("overlay incoming queue full, dropping packet")
		}
	}
}

// Incoming satisfies forwarder.Substrate.
func (u *UDP) Incoming() (forwarder.Packet, int, bool) {
	select {
	case r := <-u.in:
		return r.pkt, r.link, true
	default:
		return forwarder.Packet{}, 0, false
	}
}

// Send satisfies forwarder.Substrate.
func (u *UDP) Send(pkt forwarder.Packet, link int) error {
	if link < 0 || link >= len(u.links) {
		return fmt.Errorf("netsub: no such link %d", link)
	}
	_, err := u.conn.WriteToUDP(encode(pkt), u.links[link])
	return err
}

// Ready satisfies forwarder.Substrate. Every configured link is always
// considered ready; liveness is the Router's concern (hello/helloState),
// not the transport's.
func (u *UDP) Ready(link int) bool {
	return link >= 0 && link < len(u.links)
}

// Close releases the underlying socket.
func (u *UDP) Close() error { return u.conn.Close() }
