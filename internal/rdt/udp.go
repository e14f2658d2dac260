package rdt

import (
	"encoding/binary"
	"fmt"
	"net"

	"netlab/internal/logger"
)

// udpHeaderLen is type (1 byte) + seqNum (2 bytes, the spec's 15-bit
// sequence number fits comfortably) preceding the payload.
const udpHeaderLen = 3

func encodeUDP(pkt Packet) []byte {
	buf := make([]byte, udpHeaderLen+len(pkt.Payload))
	buf[0] = byte(pkt.Type)
	binary.BigEndian.PutUint16(buf[1:3], uint16(pkt.SeqNum))
	copy(buf[udpHeaderLen:], pkt.Payload)
	return buf
}

func decodeUDP(raw []byte) (Packet, error) {
	if len(raw) < udpHeaderLen {
		return Packet{}, fmt.Errorf("rdt: short packet (%d bytes)", len(raw))
	}
	payload := make([]byte, len(raw)-udpHeaderLen)
	copy(payload, raw[udpHeaderLen:])
	return Packet{
		Type:    packetType(raw[0]),
		SeqNum:  int(binary.BigEndian.Uint16(raw[1:3])),
		Payload: payload,
	}, nil
}

// UDPSubstrate is a point-to-point Substrate over a connected UDP
// socket: one Conn talks to exactly one peer, matching the spec's
// description of the RDT running as a single worker over a single
// unreliable link (spec §4.4, §5).
type UDPSubstrate struct {
	conn *net.UDPConn
	in   chan Packet
	lgr  logger.Logger
}

// DialUDP opens a UDP socket bound to localAddr and connected to
// peerAddr, so every Send/Receive only ever talks to that one peer.
func DialUDP(localAddr, peerAddr string, lgr logger.Logger) (*UDPSubstrate, error) {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	laddr, err := net.ResolveUDPAddr("udp4", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve local addr: %w", err)
	}
	raddr, err := net.ResolveUDPAddr("udp4", peerAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve peer addr: %w", err)
	}
	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	u := &UDPSubstrate{conn: conn, in: make(chan Packet, 4096), lgr: lgr}
	go u.readLoop()
	return u, nil
}

func (u *UDPSubstrate) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := u.conn.Read(buf)
		if err != nil {
			return
		}
		pkt, err := decodeUDP(buf[:n])
		if err != nil {
			u.lgr.Debug("dropping malformed rdt packet", logger.F("err", err))
			continue
		}
		select {
		case u.in <- pkt:
		default:
			u.lgr.Warn("rdt incoming queue full, dropping packet")
		}
	}
}

// Incoming satisfies Substrate.
func (u *UDPSubstrate) Incoming() (Packet, bool) {
	select {
	case p := <-u.in:
		return p, true
	default:
		return Packet{}, false
	}
}

// Send satisfies Substrate.
func (u *UDPSubstrate) Send(pkt Packet) error {
	_, err := u.conn.Write(encodeUDP(pkt))
	return err
}

// Ready satisfies Substrate: a connected UDP socket is always
// considered writable.
func (u *UDPSubstrate) Ready() bool { return true }

// Close releases the underlying socket.
func (u *UDPSubstrate) Close() error { return u.conn.Close() }
