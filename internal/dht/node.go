// Package dht implements the Chord-style distributed hash table: one
// UDP-speaking process per ring member, owning a contiguous hash
// range, forwarding requests it cannot serve authoritatively, and
// joining/leaving a live ring, grounded on the teacher's
// internal/node package (its ticker-driven maintenance loop and
// single-goroutine ownership of mutable state) but rewritten for the
// spec's plain UDP wire protocol instead of gRPC.
package dht

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"netlab/internal/bootstrap"
	"netlab/internal/config"
	"netlab/internal/logger"
	"netlab/internal/ringkey"
	"netlab/internal/wire"
)

// Config configures a Node, mirroring the DHT server's CLI surface
// (spec §6) plus the ambient knobs from SPEC_FULL.md.
type Config struct {
	Addr      string // this node's own "ip:port"
	NumRoutes int
	CacheSize int  // 0 disables the result cache
	Debug     bool
	CfgFile   string // where this node writes "ip port" for others to read
	PredFile  string // predecessor contact to join through, if any

	// Bootstrap supplements the file-based contact with the DNS/static/
	// Route53 discovery modes from SPEC_FULL.md ("DNS/Route53 bootstrap
	// (supplement)"). Zero value (Mode=="") means file-only.
	Bootstrap config.BootstrapConfig
}

// Node is one Chord ring member.
type Node struct {
	cfg Config
	lgr logger.Logger

	addr      string
	hashRange ringkey.Range
	succ      wire.NodeRef
	pred      wire.NodeRef
	rt        *routingTable
	store     *store
	cache     *resultCache

	conn      net.PacketConn
	tracer    oteltrace.Tracer
	registrar bootstrap.Registrar

	leaving   bool
	leaveDone chan struct{}
	nextTag   int
}

// New builds a Node from cfg. Call Run to bootstrap it into a ring and
// serve requests.
func New(cfg Config, lgr logger.Logger) *Node {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	n := &Node{
		cfg:       cfg,
		lgr:       lgr,
		addr:      cfg.Addr,
		rt:        newRoutingTable(lgr, cfg.NumRoutes),
		store:     newStore(lgr),
		tracer:    otel.Tracer("netlab/dht"),
		leaveDone: make(chan struct{}),
	}
	if cfg.CacheSize > 0 {
		n.cache = newResultCache(cfg.CacheSize)
	}
	return n
}

// Run opens the node's UDP socket, joins a ring (or starts solo), then
// serves packets until ctx is canceled or Leave completes. It always
// closes the socket before returning.
func (n *Node) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", n.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.addr, err)
	}
	n.conn = conn
	defer conn.Close()
	n.addr = conn.LocalAddr().String()

	if err := n.bootstrap(); err != nil {
		return err
	}
	defer func() {
		if n.registrar != nil {
			_ = n.registrar.Deregister(context.Background(), n.addr)
		}
	}()
	if n.cfg.CfgFile != "" {
		if err := n.writeCfgFile(); err != nil {
			return fmt.Errorf("write cfgFile: %w", err)
		}
	}

	n.lgr.Info("dht node serving",
		logger.F("addr", n.addr),
		logger.F("hashRange", n.hashRange.String()),
	)

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.leaveDone:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		nr, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			n.lgr.Warn("read error", logger.F("err", err))
			continue
		}
		raw := make([]byte, nr)
		copy(raw, buf[:nr])
		n.handlePacket(raw, from)
	}
}

// bootstrap tries, in order, the discovery-based contacts from
// cfg.Bootstrap (SPEC_FULL.md "DNS/Route53 bootstrap (supplement)"),
// then cfg.PredFile's contact (spec §6), and finally starts solo if
// neither yields a predecessor.
func (n *Node) bootstrap() error {
	discoverer, registrar, err := bootstrap.New(n.cfg.Bootstrap, n.lgr)
	if err != nil {
		return fmt.Errorf("bootstrap config: %w", err)
	}
	n.registrar = registrar

	if discoverer != nil {
		candidates, err := discoverer.Discover(context.Background())
		if err != nil {
			n.lgr.Warn("bootstrap discovery failed, falling back", logger.F("err", err))
		}
		for _, addr := range candidates {
			if addr == n.addr {
				continue
			}
			if err := n.join(addr); err != nil {
				n.lgr.Warn("discovered predecessor rejected join", logger.F("addr", addr), logger.F("err", err))
				continue
			}
			n.registerSelf()
			return nil
		}
	}

	if n.cfg.PredFile != "" {
		predAddr, err := readPredFile(n.cfg.PredFile)
		if err != nil {
			return fmt.Errorf("read predFile: %w", err)
		}
		if err := n.join(predAddr); err != nil {
			return err
		}
		n.registerSelf()
		return nil
	}

	n.hashRange = ringkey.Full()
	n.succ = wire.NodeRef{Addr: n.addr, FirstHash: n.hashRange.Lo}
	n.pred = n.succ
	n.lgr.Info("starting solo ring", logger.F("hashRange", n.hashRange.String()))
	n.registerSelf()
	return nil
}

func (n *Node) registerSelf() {
	if n.registrar == nil {
		return
	}
	if err := n.registrar.Register(context.Background(), n.addr); err != nil {
		n.lgr.Warn("bootstrap self-registration failed", logger.F("err", err))
	}
}

// join sends a join request to predAddr and blocks for its reply,
// exiting the process with status 1 when the reply is malformed or
// carries the wrong tag or source (spec §7: "unexpected join reply").
// A failure reply, or a success reply missing a required field, is
// returned as an error instead.
func (n *Node) join(predAddr string) error {
	tag := n.newTag()
	req := &wire.DHTPacket{
		Type:       wire.TypeJoin,
		Tag:        tag,
		TTL:        16,
		HasSender:  true,
		SenderInfo: wire.NodeRef{Addr: n.addr, FirstHash: 0},
	}

	dst, err := net.ResolveUDPAddr("udp", predAddr)
	if err != nil {
		return fmt.Errorf("resolve predecessor %s: %w", predAddr, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var reply *wire.DHTPacket
	for attempt := 0; attempt < 5; attempt++ {
		if _, err := n.conn.WriteTo([]byte(req.Encode()), dst); err != nil {
			return fmt.Errorf("send join: %w", err)
		}
		n.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		buf := make([]byte, 64*1024)
		nr, from, err := n.conn.ReadFrom(buf)
		if err != nil {
			if time.Now().After(deadline) {
				break
			}
			continue
		}
		p, err := wire.Decode(buf[:nr])
		if err != nil {
			n.lgr.Error("malformed join reply", logger.F("err", err))
			os.Exit(1)
		}
		if p.Tag != tag || from.String() != dst.String() {
			n.lgr.Error("unexpected join reply", logger.F("tag", p.Tag), logger.F("from", from.String()))
			os.Exit(1)
		}
		reply = p
		break
	}
	if reply == nil {
		return fmt.Errorf("no reply from predecessor %s", predAddr)
	}
	if reply.Type == wire.TypeFailure {
		return fmt.Errorf("join rejected: %s", reply.Reason)
	}
	if !reply.HasHashRange || !reply.HasSucc || !reply.HasPred {
		return fmt.Errorf("join success reply missing required fields")
	}

	n.hashRange = ringkey.Range{Lo: reply.HashRange.Lo, Hi: reply.HashRange.Hi}
	n.succ = reply.SuccInfo
	n.pred = reply.PredInfo
	n.rt.addRoute(n.succ, n.succ)
	n.lgr.Info("joined ring", logger.F("hashRange", n.hashRange.String()), logger.F("pred", n.pred.String()), logger.F("succ", n.succ.String()))
	return nil
}

func (n *Node) newTag() int {
	n.nextTag++
	return n.nextTag
}

func readPredFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var ip string
	var port int
	if _, err := fmt.Sscanf(string(data), "%s %d", &ip, &port); err != nil {
		return "", fmt.Errorf("malformed predFile: %w", err)
	}
	return fmt.Sprintf("%s:%d", ip, port), nil
}

func (n *Node) writeCfgFile() error {
	host, port, err := net.SplitHostPort(n.addr)
	if err != nil {
		return err
	}
	return os.WriteFile(n.cfg.CfgFile, []byte(fmt.Sprintf("%s %s\n", host, port)), 0o644)
}

func (n *Node) sendTo(addr string, p *wire.DHTPacket) {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		n.lgr.Warn("resolve send target failed", logger.F("addr", addr), logger.F("err", err))
		return
	}
	if _, err := n.conn.WriteTo([]byte(p.Encode()), dst); err != nil {
		n.lgr.Warn("send failed", logger.F("addr", addr), logger.F("err", err))
	}
}
