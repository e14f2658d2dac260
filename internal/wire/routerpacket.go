package wire

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// RouterMagic is the required first line of every Router packet.
const RouterMagic = "RPv0"

// RouterPacketType enumerates the Router's four packet kinds.
type RouterPacketType string

const (
	RouterHello   RouterPacketType = "hello"
	RouterHello2U RouterPacketType = "hello2u"
	RouterAdvert  RouterPacketType = "advert"
	RouterFadvert RouterPacketType = "fadvert"
)

// PathVec is the decoded payload of an advert packet: a prefix
// reachable at cost, along the router path ip1..ipK (originator last).
type PathVec struct {
	Prefix    netip.Prefix
	Timestamp int64
	Cost      float64
	Path      []string
}

// LinkFail is the decoded payload of a fadvert packet.
type LinkFail struct {
	FromIP    string
	ToIP      string
	Timestamp int64
	Path      []string
}

// RouterPacket is the flat envelope for the Router's ASCII protocol.
type RouterPacket struct {
	Type      RouterPacketType
	Timestamp int64
	PathVec   *PathVec
	LinkFail  *LinkFail
}

// EncodeHello renders a hello or hello2u packet.
func EncodeHello(typ RouterPacketType, timestamp int64) string {
	return fmt.Sprintf("%s\ntype: %s\ntimestamp: %d\n", RouterMagic, typ, timestamp)
}

// EncodeAdvert renders a path-vector advertisement.
func EncodeAdvert(pv PathVec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\ntype: %s\npathvec: %s %d %g", RouterMagic, RouterAdvert, pv.Prefix, pv.Timestamp, pv.Cost)
	for _, ip := range pv.Path {
		b.WriteByte(' ')
		b.WriteString(ip)
	}
	b.WriteByte('\n')
	return b.String()
}

// EncodeFadvert renders a link-failure advertisement.
func EncodeFadvert(lf LinkFail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\ntype: %s\nlinkfail: %s %s %d", RouterMagic, RouterFadvert, lf.FromIP, lf.ToIP, lf.Timestamp)
	for _, ip := range lf.Path {
		b.WriteByte(' ')
		b.WriteString(ip)
	}
	b.WriteByte('\n')
	return b.String()
}

// DecodeRouter parses raw into a RouterPacket.
func DecodeRouter(raw []byte) (*RouterPacket, error) {
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) == 0 || lines[0] != RouterMagic {
		return nil, fmt.Errorf("missing or wrong router magic line")
	}

	rp := &RouterPacket{}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed router line %q", line)
		}
		val = strings.TrimSpace(val)
		switch key {
		case "type":
			rp.Type = RouterPacketType(val)
		case "timestamp":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed timestamp %q: %w", val, err)
			}
			rp.Timestamp = ts
		case "pathvec":
			pv, err := parsePathVec(val)
			if err != nil {
				return nil, err
			}
			rp.PathVec = pv
		case "linkfail":
			lf, err := parseLinkFail(val)
			if err != nil {
				return nil, err
			}
			rp.LinkFail = lf
		default:
			return nil, fmt.Errorf("unknown router field %q", key)
		}
	}
	if rp.Type == "" {
		return nil, fmt.Errorf("missing type field")
	}
	return rp, nil
}

func parsePathVec(val string) (*PathVec, error) {
	fields := strings.Fields(val)
	if len(fields) < 4 {
		return nil, fmt.Errorf("malformed pathvec %q: need prefix, timestamp, cost, and at least one ip", val)
	}
	pfx, err := netip.ParsePrefix(fields[0])
	if err != nil {
		return nil, fmt.Errorf("malformed pathvec prefix %q: %w", fields[0], err)
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed pathvec timestamp %q: %w", fields[1], err)
	}
	cost, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed pathvec cost %q: %w", fields[2], err)
	}
	return &PathVec{Prefix: pfx, Timestamp: ts, Cost: cost, Path: fields[3:]}, nil
}

func parseLinkFail(val string) (*LinkFail, error) {
	fields := strings.Fields(val)
	if len(fields) < 4 {
		return nil, fmt.Errorf("malformed linkfail %q: need fromIp, toIp, timestamp, and at least one ip", val)
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed linkfail timestamp %q: %w", fields[2], err)
	}
	return &LinkFail{FromIP: fields[0], ToIP: fields[1], Timestamp: ts, Path: fields[3:]}, nil
}
