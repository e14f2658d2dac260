// Command rdt-demo exercises the Go-Back-N transport over a real UDP
// link (spec §4.4): it reads lines from stdin, sends each reliably to
// a peer, and prints whatever the peer delivers back, in the style of
// the teacher's small diagnostic clients.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netlab/internal/config"
	"netlab/internal/logger"
	zapfactory "netlab/internal/logger/zap"
	"netlab/internal/rdt"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rdt-demo <localAddr> <peerAddr> [-config ambientConfig.yaml]")
}

var configPath = flag.String("config", "", "optional YAML config for ambient knobs (logging, window size, timeout)")

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}
	localAddr, peerAddr := args[0], args[1]

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	var lgr logger.Logger = &logger.NopLogger{}
	if cfg.Logger.Active {
		zl, err := zapfactory.New(cfg.Logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
			os.Exit(1)
		}
		lgr = zapfactory.NewZapAdapter(zl).Named("rdt")
	}
	cfg.LogConfig(lgr)

	sub, err := rdt.DialUDP(localAddr, peerAddr, lgr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer sub.Close()

	rtcfg := rdt.Config{
		WSize:            cfg.RDT.WindowSize,
		Timeout:          cfg.RDT.Timeout,
		EnableDupAckRetx: cfg.RDT.EnableDupAck,
	}
	if rtcfg.WSize <= 0 || rtcfg.Timeout <= 0 {
		rtcfg = rdt.DefaultConfig()
	}
	conn := rdt.New(rtcfg, sub, lgr)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lgr.Info("received shutdown signal, draining send window")
		conn.Stop()
		cancel()
	}()

	go conn.Run(ctx)

	go func() {
		for {
			payload, err := conn.ToApp().Take(ctx)
			if err != nil {
				return
			}
			fmt.Printf("recv> %s\n", payload)
		}
	}()

	lgr.Info("rdt demo ready", logger.F("local", localAddr), logger.F("peer", peerAddr))
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		sendCtx, sendCancel := context.WithTimeout(ctx, 5*time.Second)
		_ = conn.FromApp().Put(sendCtx, []byte(line))
		sendCancel()
	}

	conn.Stop()
	cancel()
}
