// Package bootstrap resolves candidate predecessor addresses for a DHT
// node joining a ring, beyond the spec's file-based predFile contract
// (spec §6). It mirrors the teacher's pluggable Bootstrap interface so a
// node can be pointed at a static peer list, a DNS SRV record, or a
// self-registering Route53 hosted zone without touching the DHT node's
// join logic.
package bootstrap

import "context"

// Discoverer returns candidate peer addresses ("host:port") that a
// joining node can try as its predecessor contact, in order of
// preference. An empty result is not an error -- it just means the
// caller falls back to the file-based contact.
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// Registrar publishes and retracts this node's own address so future
// joiners can discover it. Implementations that don't need registration
// (static lists, plain DNS A/AAAA records) can embed NoopRegistrar.
type Registrar interface {
	Register(ctx context.Context, selfAddr string) error
	Deregister(ctx context.Context, selfAddr string) error
}

// NoopRegistrar satisfies Registrar for discovery modes that never
// publish anything back.
type NoopRegistrar struct{}

func (NoopRegistrar) Register(ctx context.Context, selfAddr string) error   { return nil }
func (NoopRegistrar) Deregister(ctx context.Context, selfAddr string) error { return nil }
