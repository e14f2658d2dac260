package dht

import (
	"fmt"
	"net"
	"time"

	"netlab/internal/wire"
)

// Client issues get/put requests against a single DHT node over UDP.
// Retries are the client's responsibility (spec §7: "nothing is
// retried at the DHT layer"); Client resends with the same tag on
// timeout, which keeps the operation idempotent at the packet level.
type Client struct {
	conn    net.PacketConn
	server  net.Addr
	tag     int
	retries int
	timeout time.Duration
}

// NewClient binds a local UDP socket at myAddr and targets serverAddr.
func NewClient(myAddr, serverAddr string) (*Client, error) {
	conn, err := net.ListenPacket("udp", myAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", myAddr, err)
	}
	dst, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("resolve server %s: %w", serverAddr, err)
	}
	return &Client{conn: conn, server: dst, retries: 5, timeout: 2 * time.Second}, nil
}

// Close releases the client's socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) nextTag() int {
	c.tag++
	return c.tag
}

// Get issues a get(key) request, returning the value and whether the
// key was present (false with no error on "no match").
func (c *Client) Get(key string) (value string, found bool, err error) {
	reply, err := c.roundTrip(&wire.DHTPacket{Type: wire.TypeGet, Key: key, Tag: c.nextTag(), TTL: 100})
	if err != nil {
		return "", false, err
	}
	switch reply.Type {
	case wire.TypeSuccess:
		return reply.Value, true, nil
	case wire.TypeNoMatch:
		return "", false, nil
	case wire.TypeFailure:
		return "", false, fmt.Errorf("get failed: %s", reply.Reason)
	default:
		return "", false, fmt.Errorf("unexpected reply type %q", reply.Type)
	}
}

// Put issues a put(key,value) request.
func (c *Client) Put(key, value string) error {
	reply, err := c.roundTrip(&wire.DHTPacket{Type: wire.TypePut, Key: key, Value: value, HasValue: true, Tag: c.nextTag(), TTL: 100})
	if err != nil {
		return err
	}
	if reply.Type == wire.TypeFailure {
		return fmt.Errorf("put failed: %s", reply.Reason)
	}
	return nil
}

// roundTrip sends req and retries on timeout with the same tag up to
// c.retries times, discarding any reply whose tag doesn't match (a
// straggler from an earlier retry).
func (c *Client) roundTrip(req *wire.DHTPacket) (*wire.DHTPacket, error) {
	buf := make([]byte, 64*1024)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if _, err := c.conn.WriteTo([]byte(req.Encode()), c.server); err != nil {
			return nil, fmt.Errorf("send: %w", err)
		}
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
		for {
			nr, _, err := c.conn.ReadFrom(buf)
			if err != nil {
				break // timed out, fall through to retry
			}
			p, err := wire.Decode(buf[:nr])
			if err != nil || p.Tag != req.Tag {
				continue
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("no reply after %d attempts", c.retries+1)
}
