// Package wire implements the ASCII, line-oriented, keyword-tagged
// packet formats of the DHT and the Router (spec §6), grounded on
// the teacher's protobuf-free predecessor: a total decode function into
// a flat struct plus an explicit error, rather than a tag-union, to
// match the wire format's own "every field optional" shape.
package wire

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// DHTMagic is the required first line of every DHT packet. Packets
// missing it are rejected outright.
const DHTMagic = "CSE473 DHTPv0.1"

// PacketType enumerates the DHT packet kinds carried by the "type"
// field.
type PacketType string

const (
	TypeGet       PacketType = "get"
	TypePut       PacketType = "put"
	TypeSuccess   PacketType = "success"
	TypeNoMatch   PacketType = "no match"
	TypeFailure   PacketType = "failure"
	TypeJoin      PacketType = "join"
	TypeLeave     PacketType = "leave"
	TypeTransfer  PacketType = "transfer"
	TypeUpdate    PacketType = "update"
)

// NodeRef names a DHT node by its dial address and the low end of its
// hash range, the "(address:port, firstHash)" triple used for
// senderInfo/succInfo/predInfo.
type NodeRef struct {
	Addr      string
	FirstHash int32
}

func (n NodeRef) String() string {
	return fmt.Sprintf("%s:%d", n.Addr, n.FirstHash)
}

func parseNodeRef(s string) (NodeRef, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return NodeRef{}, fmt.Errorf("malformed node reference %q", s)
	}
	addr, hashStr := s[:idx], s[idx+1:]
	h, err := strconv.ParseInt(hashStr, 10, 32)
	if err != nil {
		return NodeRef{}, fmt.Errorf("malformed firstHash in %q: %w", s, err)
	}
	if addr == "" || !strings.Contains(addr, ":") {
		return NodeRef{}, fmt.Errorf("malformed address in node reference %q", s)
	}
	return NodeRef{Addr: addr, FirstHash: int32(h)}, nil
}

// HashRange is the wire form of a closed hash interval.
type HashRange struct {
	Lo, Hi int32
}

func (r HashRange) String() string {
	return fmt.Sprintf("%d:%d", r.Lo, r.Hi)
}

func parseHashRange(s string) (HashRange, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return HashRange{}, fmt.Errorf("malformed hashRange %q", s)
	}
	loN, err := strconv.ParseInt(lo, 10, 32)
	if err != nil {
		return HashRange{}, fmt.Errorf("malformed hashRange lo %q: %w", s, err)
	}
	hiN, err := strconv.ParseInt(hi, 10, 32)
	if err != nil {
		return HashRange{}, fmt.Errorf("malformed hashRange hi %q: %w", s, err)
	}
	return HashRange{Lo: int32(loN), Hi: int32(hiN)}, nil
}

// DHTPacket is the flat envelope carrying every optional field spec §3
// allows; absence is represented with zero values and the Has* flags
// below where zero is itself meaningful.
type DHTPacket struct {
	Type  PacketType
	Key   string
	Value string
	HasValue bool
	Reason string

	Tag int
	TTL int

	ClientAdr string
	RelayAdr  string

	SenderInfo NodeRef
	HasSender  bool
	SuccInfo   NodeRef
	HasSucc    bool
	PredInfo   NodeRef
	HasPred    bool

	HashRange    HashRange
	HasHashRange bool
}

// Encode renders p in the wire's ASCII line format.
func (p *DHTPacket) Encode() string {
	var b strings.Builder
	b.WriteString(DHTMagic)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "type:%s\n", p.Type)
	if p.Key != "" {
		fmt.Fprintf(&b, "key:%s\n", p.Key)
	}
	if p.HasValue {
		fmt.Fprintf(&b, "value:%s\n", p.Value)
	}
	fmt.Fprintf(&b, "tag:%d\n", p.Tag)
	fmt.Fprintf(&b, "ttl:%d\n", p.TTL)
	if p.ClientAdr != "" {
		fmt.Fprintf(&b, "clientAdr:%s\n", p.ClientAdr)
	}
	if p.RelayAdr != "" {
		fmt.Fprintf(&b, "relayAdr:%s\n", p.RelayAdr)
	}
	if p.HasSender {
		fmt.Fprintf(&b, "senderInfo:%s\n", p.SenderInfo)
	}
	if p.HasSucc {
		fmt.Fprintf(&b, "succInfo:%s\n", p.SuccInfo)
	}
	if p.HasPred {
		fmt.Fprintf(&b, "predInfo:%s\n", p.PredInfo)
	}
	if p.HasHashRange {
		fmt.Fprintf(&b, "hashRange:%s\n", p.HashRange)
	}
	if p.Reason != "" {
		fmt.Fprintf(&b, "reason:%s\n", p.Reason)
	}
	return b.String()
}

// Decode parses raw into a DHTPacket, returning a descriptive error on
// any malformed line rather than a partial result -- callers reply
// with a `failure` packet carrying that error's text as the reason.
func Decode(raw []byte) (*DHTPacket, error) {
	sc := bufio.NewScanner(strings.NewReader(string(raw)))
	if !sc.Scan() {
		return nil, fmt.Errorf("empty packet")
	}
	if sc.Text() != DHTMagic {
		return nil, fmt.Errorf("missing or wrong magic line")
	}

	p := &DHTPacket{}
	haveTag, haveTTL, haveType := false, false, false

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed line %q", line)
		}
		switch key {
		case "type":
			p.Type = PacketType(val)
			haveType = true
		case "key":
			p.Key = val
		case "value":
			p.Value = val
			p.HasValue = true
		case "reason":
			p.Reason = val
		case "tag":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("malformed tag %q: %w", val, err)
			}
			p.Tag = n
			haveTag = true
		case "ttl":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("malformed ttl %q: %w", val, err)
			}
			p.TTL = n
			haveTTL = true
		case "clientAdr":
			p.ClientAdr = val
		case "relayAdr":
			p.RelayAdr = val
		case "senderInfo":
			ref, err := parseNodeRef(val)
			if err != nil {
				return nil, err
			}
			p.SenderInfo, p.HasSender = ref, true
		case "succInfo":
			ref, err := parseNodeRef(val)
			if err != nil {
				return nil, err
			}
			p.SuccInfo, p.HasSucc = ref, true
		case "predInfo":
			ref, err := parseNodeRef(val)
			if err != nil {
				return nil, err
			}
			p.PredInfo, p.HasPred = ref, true
		case "hashRange":
			hr, err := parseHashRange(val)
			if err != nil {
				return nil, err
			}
			p.HashRange, p.HasHashRange = hr, true
		default:
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !haveType {
		return nil, fmt.Errorf("missing type field")
	}
	if !haveTag {
		return nil, fmt.Errorf("missing tag field")
	}
	if !haveTTL {
		return nil, fmt.Errorf("missing ttl field")
	}
	return p, nil
}
