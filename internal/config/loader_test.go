package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SM_TEST_HOST", "db.internal")

	assert.Equal(t, "host: db.internal", expandEnv("host: ${SM_TEST_HOST}"))
	assert.Equal(t, "port: 5433", expandEnv("port: ${SM_TEST_MISSING:5433}"))
	assert.Equal(t, "key: ", expandEnv("key: ${SM_TEST_MISSING:}"))
	assert.Equal(t, "raw: ${SM_TEST_MISSING}", expandEnv("raw: ${SM_TEST_MISSING}"))
}

func TestLoadFromAppliesDefaultsAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "staging")
	t.Setenv("SM_ROLLOUT", "25")

	writeConfig(t, dir, "config.yaml", `
vector:
  enabled: true
  provider: qdrant
  rollout_percentage: ${SM_ROLLOUT:0}
security:
  jwt:
    secret: s3cret
`)
	writeConfig(t, dir, "config.staging.yaml", `
cache:
  driver: memory
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.True(t, cfg.Vector.Enabled)
	assert.Equal(t, "qdrant", cfg.Vector.Provider)
	assert.Equal(t, 25, cfg.Vector.RolloutPercentage)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 9, cfg.Matching.PerPage)
	assert.Equal(t, 50, cfg.Matching.CandidateLimit)
	assert.InDelta(t, 0.3, cfg.Matching.BaseThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Matching.SpecificThreshold, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.Matching.CacheTTL)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
}

func TestLoadFromRejectsInvalidRollout(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	writeConfig(t, dir, "config.yaml", `
vector:
  rollout_percentage: 150
security:
  jwt:
    secret: s3cret
`)

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollout_percentage")
}

func TestLoadFromMissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}
