package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "test.db")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ARTIFACT_BACKEND", "fs")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 4000, cfg.Pipeline.ChunkMaxTokens)
	assert.Equal(t, 100, cfg.Pipeline.ChunkOverlapTokens)
	assert.Equal(t, 1000, cfg.Pipeline.IndexChunkTokens)
	assert.Equal(t, 4, cfg.Pipeline.MapMaxWorkers)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.ModelCallTimeout)
	assert.Equal(t, int64(10<<20), cfg.Pipeline.MaxUploadBytes)
	assert.Equal(t, 2, cfg.Pipeline.StageAttempts)
	assert.Equal(t, "db", cfg.ProgressStore)
}

func TestLoadConfigOverridesAndFallbacks(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ARTIFACT_BACKEND", "fs")
	t.Setenv("MAP_MAX_WORKERS", "8")
	t.Setenv("MODEL_CALL_TIMEOUT", "5s")
	t.Setenv("STORE_ATTEMPTS", "many")
	t.Setenv("LLM_RATE_LIMIT", "2.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pipeline.MapMaxWorkers)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.ModelCallTimeout)
	assert.Equal(t, 3, cfg.Pipeline.StoreAttempts)
	assert.InDelta(t, 2.5, cfg.LLMRate, 0.0001)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DBDriver:        "sqlite",
			SqlitePath:      "x.db",
			ArtifactBackend: "fs",
			ProgressStore:   "db",
			JWTSecret:       "s",
			Pipeline: PipelineConfig{
				ChunkMaxTokens:     500,
				ChunkOverlapTokens: 50,
				IndexChunkTokens:   1000,
				IndexOverlapTokens: 200,
				MapMaxWorkers:      4,
				StageWorkers:       2,
				StageAttempts:      2,
				StoreAttempts:      3,
			},
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"pgx without url", func(c *Config) { c.DBDriver = "pgx" }},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"unknown backend", func(c *Config) { c.ArtifactBackend = "gcs" }},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"overlap too large", func(c *Config) { c.Pipeline.ChunkOverlapTokens = 500 }},
		{"no workers", func(c *Config) { c.Pipeline.MapMaxWorkers = 0 }},
		{"no store attempts", func(c *Config) { c.Pipeline.StoreAttempts = 0 }},
		{"no stage attempts", func(c *Config) { c.Pipeline.StageAttempts = 0 }},
		{"unknown progress store", func(c *Config) { c.ProgressStore = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
