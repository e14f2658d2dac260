package bootstrap

import (
	"fmt"

	"netlab/internal/config"
	"netlab/internal/logger"
)

// New builds the Discoverer+Registrar pair selected by cfg.Mode. "file"
// returns a nil pair -- the caller is expected to fall back to the
// predFile contract from spec §6 in that case.
func New(cfg config.BootstrapConfig, lgr logger.Logger) (Discoverer, Registrar, error) {
	switch cfg.Mode {
	case "", "file":
		return nil, nil, nil
	case "static":
		b := NewStaticBootstrap(cfg.Peers)
		return b, b, nil
	case "dns":
		b := NewDNSBootstrap(cfg, lgr)
		if cfg.Register.Enabled {
			r, err := NewRoute53Bootstrap(cfg.Register)
			if err != nil {
				return nil, nil, fmt.Errorf("route53 registrar: %w", err)
			}
			return b, r, nil
		}
		return b, b, nil
	default:
		return nil, nil, fmt.Errorf("unknown bootstrap mode %q", cfg.Mode)
	}
}
