// Package config loads TBWO's YAML configuration file, adapted from the
// teacher's pkg/config/loader.go (env-expansion + YAML + defaults +
// validate pipeline), but scoped to the TBWO domain: HTTP server settings
// and the engine's budget/authority/scope/quality defaults, rather than
// the teacher's agent/chain/MCP-server registries.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tbwo/engine/pkg/tbworder"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineDefaults holds the fallback budget/authority/scope/quality values
// applied to a WorkOrder when a create request omits them.
type EngineDefaults struct {
	TotalBudgetMinutes float64               `yaml:"total_budget_minutes"`
	Authority          tbworder.Authority    `yaml:"authority"`
	QualityTarget      tbworder.QualityTarget `yaml:"quality_target"`
	Scope              tbworder.Scope        `yaml:"scope"`
}

// Config is TBWO's complete application configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Engine  EngineDefaults `yaml:"engine"`
}

// Initialize is the primary entry point: load the YAML file at path,
// expand environment variables, apply defaults, and validate. Grounded on
// the teacher's config.Initialize pipeline shape.
func Initialize(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	applyDefaults(cfg)

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}
