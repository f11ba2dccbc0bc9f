package config

import (
	"fmt"

	"github.com/tbwo/engine/pkg/tbworder"
)

// Validator validates a Config comprehensively with clear error messages.
// Grounded on the teacher's pkg/config/validator.go (fail-fast, one method
// per concern).
type Validator struct {
	cfg *Config
}

// NewValidator builds a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every section in dependency order.
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateEngine(); err != nil {
		return fmt.Errorf("engine validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s.Addr == "" {
		return fmt.Errorf("%w: server.addr must not be empty", ErrInvalidValue)
	}
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 {
		return fmt.Errorf("%w: server.read_timeout/write_timeout must be positive", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateEngine() error {
	e := v.cfg.Engine
	if e.TotalBudgetMinutes <= 0 {
		return fmt.Errorf("%w: engine.total_budget_minutes must be positive, got %v", ErrInvalidValue, e.TotalBudgetMinutes)
	}
	switch e.Authority {
	case tbworder.AuthorityNoAutonomy, tbworder.AuthorityGuided, tbworder.AuthoritySupervised, tbworder.AuthorityAutonomous:
	default:
		return fmt.Errorf("%w: engine.authority %q is not a recognized authority level", ErrInvalidValue, e.Authority)
	}
	switch e.QualityTarget {
	case tbworder.QualityDraft, tbworder.QualityStandard, tbworder.QualityPremium, tbworder.QualityAppleLevel:
	default:
		return fmt.Errorf("%w: engine.quality_target %q is not a recognized quality tier", ErrInvalidValue, e.QualityTarget)
	}
	return nil
}
