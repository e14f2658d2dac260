package bootstrap

import "context"

// StaticBootstrap discovers peers from a fixed, operator-supplied list.
type StaticBootstrap struct {
	NoopRegistrar
	peers []string
}

// NewStaticBootstrap returns a StaticBootstrap over the given addresses.
func NewStaticBootstrap(peers []string) *StaticBootstrap {
	return &StaticBootstrap{peers: peers}
}

func (s *StaticBootstrap) Discover(ctx context.Context) ([]string, error) {
	return s.peers, nil
}
