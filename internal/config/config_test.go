package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatlens/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Enrichment.Concurrency)
	assert.Equal(t, 3, cfg.Enrichment.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Enrichment.BackoffInitial)
	assert.Equal(t, 7.0, cfg.Classification.HighThreshold)
	assert.Equal(t, 4.0, cfg.Classification.MediumThreshold)
	assert.Equal(t, 50, cfg.Classification.BatchMax)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/threatlens")
	t.Setenv("ENRICH_TIMEOUT", "5")
	t.Setenv("ENRICH_BACKOFF_MULTIPLIER", "2")
	t.Setenv("REASON_TIMEOUT", "90s")
	t.Setenv("SIMULATED_PROVIDERS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Enrichment.Timeout)
	assert.Equal(t, 2.0, cfg.Enrichment.BackoffMultiplier)
	assert.Equal(t, 90*time.Second, cfg.Classification.ReasonTimeout)
	assert.False(t, cfg.Providers.Simulated)
	assert.Equal(t, 2.0, cfg.Enrichment.Policy().Backoff.Multiplier)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threatlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
enrichment:
  concurrency: 8
  timeout: 10s
classification:
  high_risk_threshold: 8
  medium_risk_threshold: 5
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ENRICH_CONCURRENCY", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.Enrichment.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Enrichment.Timeout)
	assert.Equal(t, 8.0, cfg.Classification.Thresholds().High)
	assert.Equal(t, 10.0, cfg.Classification.Thresholds().Ceiling)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"DATABASE_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"zero concurrency", map[string]string{"ENRICH_CONCURRENCY": "0"}},
		{"inverted thresholds", map[string]string{"HIGH_RISK_THRESHOLD": "3"}},
		{"ceiling off the score scale", map[string]string{"SCORE_CEILING": "8"}},
		{"unparsable int", map[string]string{"CLASSIFY_WORKERS": "many"}},
		{"bad multiplier", map[string]string{"ENRICH_BACKOFF_MULTIPLIER": "0.5"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.True(t, domain.IsConfigurationError(err), "%v", err)
		})
	}
}
