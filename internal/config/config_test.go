package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.InDelta(t, 0.1, cfg.Graph.LearningRate, 0.0001)
	assert.InDelta(t, 0.15, cfg.Graph.MinRecommendConfidence, 0.0001)
	assert.Equal(t, 50, cfg.Graph.ConfidenceSampleSize)
	assert.InDelta(t, 0.005, cfg.Graph.DecayRatePerDay, 0.0001)
	assert.Equal(t, 24*time.Hour, cfg.Graph.DecayInterval.Std())
	assert.Equal(t, 2, cfg.Flow.MinTurnsPerPhase)
	assert.InDelta(t, 0.55, cfg.Compose.MinConfidence, 0.0001)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Graph, cfg.Graph)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
graph:
  learning_rate: 0.2
  stale_after: 48h
store:
  driver: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, cfg.Graph.LearningRate, 0.0001)
	assert.Equal(t, 48*time.Hour, cfg.Graph.StaleAfter.Std())
	assert.Equal(t, "memory", cfg.Store.Driver)
	// Untouched fields keep defaults.
	assert.InDelta(t, 0.15, cfg.Graph.MinRecommendConfidence, 0.0001)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WISDOMD_GRAPH_LEARNING_RATE", "0.3")
	t.Setenv("WISDOMD_STORE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 0.3, cfg.Graph.LearningRate, 0.0001)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"learning rate too high", func(c *Config) { c.Graph.LearningRate = 1.5 }},
		{"negative decay", func(c *Config) { c.Graph.DecayRatePerDay = -0.1 }},
		{"zero sample size", func(c *Config) { c.Graph.ConfidenceSampleSize = 0 }},
		{"zero min turns", func(c *Config) { c.Flow.MinTurnsPerPhase = 0 }},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"seed weight out of range", func(c *Config) { c.Graph.SeedWeight = 1.2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
