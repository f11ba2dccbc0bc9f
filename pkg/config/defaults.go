package config

import (
	"time"

	"github.com/tbwo/engine/pkg/tbworder"
)

// DefaultAddr is the fallback HTTP listen address.
const DefaultAddr = ":8080"

// applyDefaults fills in zero-valued fields left unset by the YAML file.
// Grounded on the teacher's Defaults-merge step in config.load.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Engine.TotalBudgetMinutes == 0 {
		cfg.Engine.TotalBudgetMinutes = 120
	}
	if cfg.Engine.Authority == "" {
		cfg.Engine.Authority = tbworder.AuthorityGuided
	}
	if cfg.Engine.QualityTarget == "" {
		cfg.Engine.QualityTarget = tbworder.QualityStandard
	}
}
