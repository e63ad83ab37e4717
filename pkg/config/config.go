// Package config assembles the settings shared by the server and the
// harvester CLIs: logging, storage, harvest behavior and data paths in
// one struct, with presets per environment. Binaries take a preset and
// layer flags or environment variables on top.
package config

import (
	"time"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/logging"
	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

// Config is the complete runtime configuration.
type Config struct {
	Logging   *logging.LogConfig           `json:"logging"`
	Storage   *storage.HybridStorageConfig `json:"storage"`
	Harvest   *HarvestConfig               `json:"harvest"`
	Server    *ServerConfig                `json:"server"`
	DataPaths *DataPathsConfig             `json:"data_paths"`
}

// HarvestConfig holds collection settings shared by the gazette and
// news harvesters.
type HarvestConfig struct {
	UserAgent            string        `json:"user_agent"`
	MaxRetries           int           `json:"max_retries"`     // attempts per fetch
	RetryBaseWait        time.Duration `json:"retry_base_wait"` // wait grows linearly with the attempt number
	RequestTimeout       time.Duration `json:"request_timeout"`
	MaxConcurrentFetches int           `json:"max_concurrent_fetches"`
	RespectRobots        bool          `json:"respect_robots"`

	// Outlets enabled for the news harvester.
	Outlets []string `json:"outlets"`
}

// FetcherConfig translates the harvest settings into a fetcher
// configuration, keeping the fetcher defaults for anything not covered
// here.
func (h *HarvestConfig) FetcherConfig() *harvest.FetcherConfig {
	fc := harvest.DefaultFetcherConfig()
	if h.UserAgent != "" {
		fc.UserAgent = h.UserAgent
	}
	if h.MaxRetries > 0 {
		fc.MaxRetries = h.MaxRetries
	}
	if h.RetryBaseWait > 0 {
		fc.RetryBaseWait = h.RetryBaseWait
	}
	if h.RequestTimeout > 0 {
		fc.RequestTimeout = h.RequestTimeout
	}
	fc.RespectRobots = h.RespectRobots
	return fc
}

// ServerConfig holds control API settings.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DataPathsConfig holds the data directory layout. ArchiveDir is the
// document tree the file backend serves; GitRepo is the append-only
// archive beside it.
type DataPathsConfig struct {
	DataRoot   string `json:"data_root"`
	ArchiveDir string `json:"archive_dir"`
	GitRepo    string `json:"git_repo"`

	// Failed fetches are dumped here for later inspection.
	ErrorDir string `json:"error_dir"`

	// Checkpoints and processed-ID sets.
	StateDir string `json:"state_dir"`
}

// Default returns the baseline configuration every environment starts
// from.
func Default() *Config {
	collector := ratelimit.DefaultCollectorConfig()

	return &Config{
		Logging: logging.DefaultLogConfig(),
		Storage: storage.DefaultHybridConfig(),

		Harvest: &HarvestConfig{
			UserAgent:            collector.UserAgent,
			MaxRetries:           collector.MaxRetries,
			RetryBaseWait:        2 * time.Second,
			RequestTimeout:       collector.RequestTimeout,
			MaxConcurrentFetches: 4,
			RespectRobots:        true,
			Outlets:              []string{"jornada", "proceso", "economista", "financiero", "animalpolitico"},
		},

		Server: &ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},

		DataPaths: &DataPathsConfig{
			DataRoot:   "./data",
			ArchiveDir: "./data/archive",
			GitRepo:    "./data/archive-git",
			ErrorDir:   "./data/errors",
			StateDir:   "./data/state",
		},
	}
}

// Production hardens the defaults: logs to file only, Mongo mirror on,
// tighter sync.
func Production() *Config {
	cfg := Default()

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Console = false

	cfg.Storage.EnableMongoMirror = true
	cfg.Storage.EnableSync = true
	cfg.Storage.SyncInterval = 1 * time.Minute

	return cfg
}

// Development favors a readable terminal and light touch on the source
// sites.
func Development() *Config {
	cfg := Default()

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "pretty"
	cfg.Logging.Console = true

	cfg.Storage.EnableSync = false

	// Stay extra gentle while iterating on selectors.
	cfg.Harvest.MaxConcurrentFetches = 1

	return cfg
}

// ForEnvironment maps an environment name to its preset. Unknown or
// empty names get the defaults.
func ForEnvironment(env string) *Config {
	switch env {
	case "production", "prod":
		return Production()
	case "development", "dev":
		return Development()
	default:
		return Default()
	}
}
