// Command overlay-node runs a Forwarder/Router pair over real UDP
// sockets (spec §4.2, §4.3): "overlay-node <topologyFile> [-config
// ambientConfig.yaml]".
package main

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"netlab/internal/config"
	"netlab/internal/forwarder"
	"netlab/internal/logger"
	zapfactory "netlab/internal/logger/zap"
	"netlab/internal/netsub"
	"netlab/internal/router"
)

// topology describes one overlay node's links and prefixes, the static
// wiring the spec leaves to deployment rather than to the protocol
// itself (spec §4.2 GLOSSARY "Substrate ... concrete transport
// unspecified").
type topology struct {
	Bind         string   `yaml:"bind"`
	MyIP         string   `yaml:"myIP"`
	Neighbors    []string `yaml:"neighbors"`
	SelfPrefixes []string `yaml:"selfPrefixes"`
}

var configPath = flag.String("config", "", "optional YAML config for ambient knobs (logging, router timers)")

func usage() {
	fmt.Fprintln(os.Stderr, "usage: overlay-node <topologyFile> [-config ambientConfig.yaml]")
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	topo, err := loadTopology(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load topology: %v\n", err)
		os.Exit(1)
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
		lgr = zapfactory.NewZapAdapter(zl).Named("overlay")
	}
	cfg.LogConfig(lgr)

	myIP, err := netip.ParseAddr(topo.MyIP)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid myIP %q: %v\n", topo.MyIP, err)
		os.Exit(1)
	}
	selfPrefixes := make([]netip.Prefix, 0, len(topo.SelfPrefixes))
	for _, s := range topo.SelfPrefixes {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid selfPrefix %q: %v\n", s, err)
			os.Exit(1)
		}
		selfPrefixes = append(selfPrefixes, p)
	}

	sub, err := netsub.NewUDP(topo.Bind, topo.Neighbors, lgr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open substrate: %v\n", err)
		os.Exit(1)
	}
	defer sub.Close()

	fwdr := forwarder.New(myIP, sub, lgr)
	rtr := router.New(router.Config{
		MyIP:             topo.MyIP,
		SelfPrefixes:     selfPrefixes,
		HelloInterval:    cfg.Router.HelloInterval,
		AdvertInterval:   cfg.Router.AdvertInterval,
		AdvertiseFailure: cfg.Router.AdvertiseFailure,
		Debug:            cfg.Router.Debug,
	}, fwdr, topo.Neighbors, lgr)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lgr.Info("received shutdown signal")
		cancel()
	}()

	go fwdr.Run(ctx)
	lgr.Info("overlay node serving",
		logger.F("bind", topo.Bind),
		logger.F("myIP", topo.MyIP),
		logger.F("neighbors", len(topo.Neighbors)),
	)
	rtr.Run(ctx)
}

func loadTopology(path string) (topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return topology{}, err
	}
	var t topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return topology{}, err
	}
	if t.Bind == "" || t.MyIP == "" {
		return topology{}, fmt.Errorf("topology must set bind and myIP")
	}
	return t, nil
}
