// Command dht-server runs one Chord-style DHT ring member (spec §4.1,
// §6): "<myIp> <numRoutes> <cfgFile> [cache] [debug] [predFile]".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"netlab/internal/config"
	"netlab/internal/dht"
	"netlab/internal/logger"
	zapfactory "netlab/internal/logger/zap"
	"netlab/internal/telemetry"
)

var configPath = flag.String("config", "", "optional YAML config for ambient knobs (logging, tracing, bootstrap)")

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dht-server <myIp:port> <numRoutes> <cfgFile> [cache] [debug] [predFile]")
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 3 {
		usage()
		os.Exit(1)
	}

	myAddr := args[0]
	numRoutes, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid numRoutes %q: %v\n", args[1], err)
		os.Exit(1)
	}
	cfgFile := args[2]

	var cache, debug bool
	var predFile string
	for _, a := range args[3:] {
		switch a {
		case "cache":
			cache = true
		case "debug":
			debug = true
		default:
			predFile = a
		}
	}

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
		lgr = zapfactory.NewZapAdapter(zl).Named("dht")
	}
	cfg.LogConfig(lgr)

	shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "dht-server", myAddr)
	defer shutdownTracer(context.Background())

	cacheSize := 0
	if cache {
		cacheSize = cfg.DHT.CacheSize
	}

	node := dht.New(dht.Config{
		Addr:      myAddr,
		NumRoutes: numRoutes,
		CacheSize: cacheSize,
		Debug:     debug,
		CfgFile:   cfgFile,
		PredFile:  predFile,
		Bootstrap: cfg.DHT.Bootstrap,
	}, lgr)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lgr.Info("received shutdown signal, leaving ring")
		node.Leave()
	}()

	if err := node.Run(ctx); err != nil {
		lgr.Error("node exited with error", logger.F("err", err))
		cancel()
		os.Exit(1)
	}
	cancel()
}
