package dht

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"netlab/internal/logger"
	"netlab/internal/ringkey"
)

func startNode(t *testing.T, cfg Config) (*Node, func()) {
	t.Helper()
	n := New(cfg, &logger.NopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- n.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for n.conn == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n.conn == nil {
		t.Fatal("node never started listening")
	}
	return n, func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(time.Second):
		}
	}
}

func TestSoloRingPutGet(t *testing.T) {
	n, stop := startNode(t, Config{Addr: "127.0.0.1:0", NumRoutes: 3})
	defer stop()

	cli, err := NewClient("127.0.0.1:0", n.addr)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer cli.Close()

	if err := cli.Put("dungeons", "dragons"); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, found, err := cli.Get("dungeons")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || v != "dragons" {
		t.Fatalf("expected success:dragons, got found=%v value=%q", found, v)
	}

	_, found, err = cli.Get("unknown")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	if found {
		t.Fatal("expected no match for unknown key")
	}
}

func TestTwoNodeJoinForwardsToOwner(t *testing.T) {
	a, stopA := startNode(t, Config{Addr: "127.0.0.1:0", NumRoutes: 3})
	defer stopA()

	dir := t.TempDir()
	predFile := filepath.Join(dir, "pred.txt")
	host, port, _ := splitHostPortForTest(a.addr)
	if err := os.WriteFile(predFile, []byte(host+" "+port+"\n"), 0o644); err != nil {
		t.Fatalf("write predFile: %v", err)
	}

	b, stopB := startNode(t, Config{Addr: "127.0.0.1:0", NumRoutes: 3, PredFile: predFile})
	defer stopB()

	// give the join protocol a moment to settle key ownership
	time.Sleep(100 * time.Millisecond)

	cli, err := NewClient("127.0.0.1:0", a.addr)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer cli.Close()

	// find a key that hashes into B's range by scanning a handful of
	// candidates; B owns the upper half of the original full range.
	var key string
	for _, cand := range []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7"} {
		if b.hashRange.Contains(ringkey.HashKey(cand)) {
			key = cand
			break
		}
	}
	if key == "" {
		t.Skip("no candidate key hashed into B's range; flaky by construction, not a correctness signal")
	}

	if err := cli.Put(key, "v-"+key); err != nil {
		t.Fatalf("put via relay: %v", err)
	}
	v, found, err := cli.Get(key)
	if err != nil {
		t.Fatalf("get via relay: %v", err)
	}
	if !found || v != "v-"+key {
		t.Fatalf("expected success:v-%s via forward, got found=%v value=%q", key, found, v)
	}
}

func TestLeaveHandsOffRingState(t *testing.T) {
	a, stopA := startNode(t, Config{Addr: "127.0.0.1:0", NumRoutes: 3})
	defer stopA()

	dir := t.TempDir()
	predFile := filepath.Join(dir, "pred.txt")
	host, port, _ := splitHostPortForTest(a.addr)
	if err := os.WriteFile(predFile, []byte(host+" "+port+"\n"), 0o644); err != nil {
		t.Fatalf("write predFile: %v", err)
	}

	b, stopB := startNode(t, Config{Addr: "127.0.0.1:0", NumRoutes: 3, PredFile: predFile})
	defer stopB()

	// give the join protocol a moment to settle key ownership
	time.Sleep(100 * time.Millisecond)

	cli, err := NewClient("127.0.0.1:0", a.addr)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer cli.Close()

	// find a key that hashes into B's range, same scan as the forward test
	var key string
	for _, cand := range []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7"} {
		if b.hashRange.Contains(ringkey.HashKey(cand)) {
			key = cand
			break
		}
	}
	if key == "" {
		t.Skip("no candidate key hashed into B's range; flaky by construction, not a correctness signal")
	}
	if err := cli.Put(key, "handoff"); err != nil {
		t.Fatalf("put via relay: %v", err)
	}

	b.Leave()

	select {
	case <-b.leaveDone:
	case <-time.After(2 * time.Second):
		t.Fatal("B did not complete its leave protocol in time")
	}

	// give A a moment to apply the resulting update/transfer packets
	time.Sleep(100 * time.Millisecond)

	if a.succ.Addr != a.addr || a.pred.Addr != a.addr {
		t.Fatalf("expected A to be solo again after B left, succ=%s pred=%s", a.succ.Addr, a.pred.Addr)
	}
	if a.hashRange != ringkey.Full() {
		t.Fatalf("expected A to own the full range again, got %s", a.hashRange.String())
	}

	v, found, err := cli.Get(key)
	if err != nil {
		t.Fatalf("get after leave: %v", err)
	}
	if !found || v != "handoff" {
		t.Fatalf("expected key handed off to A after B's leave, got found=%v value=%q", found, v)
	}
}

func splitHostPortForTest(addr string) (string, string, error) {
	idx := -1
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", os.ErrInvalid
	}
	return addr[:idx], addr[idx+1:], nil
}
