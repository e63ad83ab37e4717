// Package main serves the read-only archive browser over the stored
// document tree. It writes nothing, so several instances can run
// against the same archive the harvesters feed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/presentation"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/config"
	"github.com/civiclab-mx/observatorio/pkg/logging"
)

func main() {
	cfg := config.ForEnvironment(os.Getenv("OBSERVATORIO_ENV"))

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	if err := logging.SetupLogger(cfg.Logging); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	dataRoot := getEnv("OBSERVATORIO_DATA", cfg.DataPaths.ArchiveDir)
	gitRepoPath := getEnv("OBSERVATORIO_GIT_REPO", cfg.DataPaths.GitRepo)

	metrics := storage.NewSimpleMetricsCollector()
	store, err := storage.NewHybridStorage(dataRoot, gitRepoPath, cfg.Storage, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer store.Close()

	port, err := strconv.Atoi(getEnv("PORT", "8081"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid PORT")
	}

	browserConfig := &presentation.APIConfig{
		Port:       port,
		Host:       getEnv("HOST", "0.0.0.0"),
		BasePath:   "/api/v1",
		EnableCORS: true,
	}
	browser := presentation.NewAPI(presentation.NewRenderer(nil), store, browserConfig)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", browserConfig.Host, browserConfig.Port),
		Handler:      browser.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down archive browser")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Browser shutdown error")
		}
	}()

	log.Info().Str("address", server.Addr).Msg("Starting archive browser")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Archive browser stopped")
	}
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
