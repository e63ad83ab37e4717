package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg.Logging)
	require.NotNil(t, cfg.Storage)
	require.NotNil(t, cfg.Harvest)
	require.NotNil(t, cfg.Server)
	require.NotNil(t, cfg.DataPaths)

	assert.Equal(t, "file", cfg.Storage.PrimaryBackend)
	assert.True(t, cfg.Storage.EnableGitArchive)
	assert.False(t, cfg.Storage.EnableMongoMirror)

	assert.True(t, cfg.Harvest.RespectRobots)
	assert.Equal(t, []string{"jornada", "proceso", "economista", "financiero", "animalpolitico"}, cfg.Harvest.Outlets)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./data/archive", cfg.DataPaths.ArchiveDir)
	assert.Equal(t, "./data/archive-git", cfg.DataPaths.GitRepo)
}

func TestProductionConfig(t *testing.T) {
	cfg := Production()

	assert.False(t, cfg.Logging.Console)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Storage.EnableMongoMirror)
	assert.Equal(t, time.Minute, cfg.Storage.SyncInterval)

	// Presets only adjust deltas; the harvest identity stays the same.
	assert.Equal(t, Default().Harvest.UserAgent, cfg.Harvest.UserAgent)
}

func TestDevelopmentConfig(t *testing.T) {
	cfg := Development()

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.Format)
	assert.False(t, cfg.Storage.EnableSync)
	assert.Equal(t, 1, cfg.Harvest.MaxConcurrentFetches)
}

func TestForEnvironment(t *testing.T) {
	assert.True(t, ForEnvironment("production").Storage.EnableMongoMirror)
	assert.True(t, ForEnvironment("prod").Storage.EnableMongoMirror)
	assert.Equal(t, "debug", ForEnvironment("dev").Logging.Level)
	assert.Equal(t, "info", ForEnvironment("").Logging.Level)
	assert.Equal(t, "info", ForEnvironment("staging").Logging.Level)
}

func TestFetcherConfigMapping(t *testing.T) {
	h := &HarvestConfig{
		UserAgent:      "observatorio-test/1.0",
		MaxRetries:     7,
		RetryBaseWait:  3 * time.Second,
		RequestTimeout: 45 * time.Second,
		RespectRobots:  false,
	}

	fc := h.FetcherConfig()
	assert.Equal(t, "observatorio-test/1.0", fc.UserAgent)
	assert.Equal(t, 7, fc.MaxRetries)
	assert.Equal(t, 3*time.Second, fc.RetryBaseWait)
	assert.Equal(t, 45*time.Second, fc.RequestTimeout)
	assert.False(t, fc.RespectRobots)

	// Unset fields keep the fetcher defaults.
	partial := (&HarvestConfig{RespectRobots: true}).FetcherConfig()
	assert.NotEmpty(t, partial.UserAgent)
	assert.Greater(t, partial.MaxRetries, 0)
	assert.Greater(t, partial.MaxBodySize, int64(0))
}
