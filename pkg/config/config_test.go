package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "italian", cfg.Analyzer.Profile)
	assert.Equal(t, 3.0, cfg.Search.TitleWeight)
	assert.Equal(t, 1.0, cfg.Search.BodyWeight)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
search:
  titleWeight: 5
  defaultLimit: 20
cache:
  backend: none
  ttl: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("SP_ANALYZER_PROFILE", "simple")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Search.TitleWeight)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "simple", cfg.Analyzer.Profile)
}

func TestValidateRejectsTitleNotAboveBody(t *testing.T) {
	cfg := Default()
	cfg.Search.TitleWeight = 1
	cfg.Search.BodyWeight = 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "titleWeight")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Cache.Backend = "memcached"
	require.Error(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := Default().Postgres
	assert.Equal(t, "host=localhost port=5432 user=searchengine password=localdev dbname=searchengine sslmode=disable", p.DSN())
}
