package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/tbworder"
)

func TestInitializeAppliesDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Initialize(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, tbworder.AuthorityGuided, cfg.Engine.Authority)
	assert.Equal(t, tbworder.QualityStandard, cfg.Engine.QualityTarget)
	assert.Equal(t, 120.0, cfg.Engine.TotalBudgetMinutes)
}

func TestInitializeExpandsEnvAndOverridesDefaults(t *testing.T) {
	t.Setenv("TBWO_TEST_ADDR", ":9090")

	path := filepath.Join(t.TempDir(), "tbwo.yaml")
	yamlContent := `
server:
  addr: "${TBWO_TEST_ADDR}"
  read_timeout: 5s
  write_timeout: 5s
engine:
  total_budget_minutes: 60
  authority: autonomous
  quality_target: premium
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := Initialize(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, tbworder.AuthorityAutonomous, cfg.Engine.Authority)
	assert.Equal(t, tbworder.QualityPremium, cfg.Engine.QualityTarget)
	assert.Equal(t, 60.0, cfg.Engine.TotalBudgetMinutes)
}

func TestInitializeRejectsInvalidAuthority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tbwo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  authority: sovereign\n"), 0o600))

	_, err := Initialize(path)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
