package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"netlab/internal/config"
	"netlab/internal/logger"
)

// DNSBootstrap discovers ring peers via an SRV record (or, if SRV is
// disabled, a plain A/AAAA lookup), grounded on the teacher's
// ResolveBootstrap. A failed or empty lookup returns no candidates
// rather than an error -- the caller falls back to the file-based
// contact from spec §6.
type DNSBootstrap struct {
	NoopRegistrar
	cfg config.BootstrapConfig
	lgr logger.Logger
}

// NewDNSBootstrap returns a DNSBootstrap configured from cfg.
func NewDNSBootstrap(cfg config.BootstrapConfig, lgr logger.Logger) *DNSBootstrap {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &DNSBootstrap{cfg: cfg, lgr: lgr}
}

func (d *DNSBootstrap) Discover(ctx context.Context) ([]string, error) {
	cfg := d.cfg
	client := &dns.Client{Timeout: 2 * time.Second}

	server := cfg.Resolver
	if server == "" {
		server = "8.8.8.8:53"
	} else if !strings.Contains(server, ":") {
		server += ":53"
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if cfg.SRV {
		return d.discoverSRV(ctx, client, server)
	}
	return d.discoverHost(ctx, client, server)
}

func (d *DNSBootstrap) discoverSRV(ctx context.Context, client *dns.Client, server string) ([]string, error) {
	cfg := d.cfg
	name := fmt.Sprintf("_%s._%s.%s", cfg.Service, cfg.Proto, cfg.DNSName)
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeSRV)
	d.lgr.Info("sending SRV query", logger.F("qname", msg.Question[0].Name))

	in, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		d.lgr.Warn("SRV lookup failed", logger.F("err", err), logger.F("qname", name))
		return nil, nil
	}
	if len(in.Answer) == 0 {
		d.lgr.Warn("SRV lookup returned no answers", logger.F("qname", name))
		return nil, nil
	}

	srvTargets := map[string][]string{}
	for _, extra := range in.Extra {
		switch rr := extra.(type) {
		case *dns.A:
			srvTargets[strings.TrimSuffix(rr.Hdr.Name, ".")] = append(srvTargets[strings.TrimSuffix(rr.Hdr.Name, ".")], rr.A.String())
		case *dns.AAAA:
			srvTargets[strings.TrimSuffix(rr.Hdr.Name, ".")] = append(srvTargets[strings.TrimSuffix(rr.Hdr.Name, ".")], rr.AAAA.String())
		}
	}

	var out []string
	for _, ans := range in.Answer {
		srv, ok := ans.(*dns.SRV)
		if !ok {
			continue
		}
		target := strings.TrimSuffix(srv.Target, ".")
		ips, found := srvTargets[target]
		if !found {
			ips = d.resolveHost(ctx, client, server, target)
		}
		for _, ip := range ips {
			if strings.Contains(ip, ":") {
				out = append(out, fmt.Sprintf("[%s]:%d", ip, srv.Port))
			} else {
				out = append(out, fmt.Sprintf("%s:%d", ip, srv.Port))
			}
		}
	}
	return out, nil
}

func (d *DNSBootstrap) discoverHost(ctx context.Context, client *dns.Client, server string) ([]string, error) {
	cfg := d.cfg
	name := dns.Fqdn(cfg.DNSName)
	var out []string
	for _, ip := range d.resolveHost(ctx, client, server, name) {
		if strings.Contains(ip, ":") {
			out = append(out, fmt.Sprintf("[%s]:%d", ip, cfg.Port))
		} else {
			out = append(out, fmt.Sprintf("%s:%d", ip, cfg.Port))
		}
	}
	if len(out) == 0 {
		d.lgr.Warn("host lookup returned no addresses", logger.F("qname", name))
	}
	return out, nil
}

func (d *DNSBootstrap) resolveHost(ctx context.Context, client *dns.Client, server, target string) []string {
	var ips []string
	msgA := new(dns.Msg)
	msgA.SetQuestion(dns.Fqdn(target), dns.TypeA)
	if inA, _, err := client.ExchangeContext(ctx, msgA, server); err == nil {
		for _, a := range inA.Answer {
			if arec, ok := a.(*dns.A); ok {
				ips = append(ips, arec.A.String())
			}
		}
	}
	msgAAAA := new(dns.Msg)
	msgAAAA.SetQuestion(dns.Fqdn(target), dns.TypeAAAA)
	if inAAAA, _, err := client.ExchangeContext(ctx, msgAAAA, server); err == nil {
		for _, a := range inAAAA.Answer {
			if aaaa, ok := a.(*dns.AAAA); ok {
				ips = append(ips, aaaa.AAAA.String())
			}
		}
	}
	return ips
}
