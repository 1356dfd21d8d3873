package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSetsDownloadConcurrency(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 16, cfg.DownloadConcurrency)
	assert.Empty(t, cfg.CASRoot)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("PESDE_CAS_DIR", "/tmp/cas")
	t.Setenv("PESDE_DOWNLOAD_CONCURRENCY", "4")
	t.Setenv("PESDE_CONTINUE_ON_ERROR", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cas", cfg.CASRoot)
	assert.Equal(t, 4, cfg.DownloadConcurrency)
	assert.True(t, cfg.ContinueOnError)
}

func TestLoadRejectsMalformedIntEnv(t *testing.T) {
	t.Setenv("PESDE_DOWNLOAD_CONCURRENCY", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}
