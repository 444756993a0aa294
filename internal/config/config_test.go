package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "nasdaq100", cfg.Pool)
	assert.Equal(t, 90, cfg.BacktestDays)
	assert.Equal(t, 504, cfg.TuningDays)
	assert.Equal(t, 10, cfg.Iterations)
	assert.Equal(t, 5.0, cfg.MinImprovement)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "pool: sp500\nbacktest_days: 180\nmin_improvement: 3.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strategy.yaml"), []byte(yaml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sp500", cfg.Pool)
	assert.Equal(t, 180, cfg.BacktestDays)
	assert.Equal(t, 3.5, cfg.MinImprovement)
	// untouched keys keep their defaults
	assert.Equal(t, 10, cfg.Iterations)
}
