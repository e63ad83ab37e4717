// Package main runs the observatory server: a Temporal worker for the
// harvest workflows and the Fiber control API in one process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/civiclab-mx/observatorio/internal/api"
	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/harvest/gaceta"
	"github.com/civiclab-mx/observatorio/internal/harvest/news"
	"github.com/civiclab-mx/observatorio/internal/nlp"
	"github.com/civiclab-mx/observatorio/internal/pipeline"
	"github.com/civiclab-mx/observatorio/internal/processing"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/internal/temporal/activities"
	"github.com/civiclab-mx/observatorio/internal/temporal/workflows"
	"github.com/civiclab-mx/observatorio/pkg/config"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
	"github.com/civiclab-mx/observatorio/pkg/logging"
	"github.com/civiclab-mx/observatorio/pkg/placenames"
	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

// taskQueue is shared by the worker and every workflow the API starts.
const taskQueue = "observatorio"

func main() {
	// OBSERVATORIO_ENV picks the preset; individual variables below
	// override single fields on top of it.
	cfg := config.ForEnvironment(os.Getenv("OBSERVATORIO_ENV"))

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	if err := logging.SetupLogger(cfg.Logging); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort: getEnv("TEMPORAL_HOST", "localhost:7233"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Temporal client")
	}
	defer temporalClient.Close()

	// Storage: file tree primary, git archive alongside, Mongo mirror
	// only when a URI is configured.
	dataRoot := getEnv("OBSERVATORIO_DATA", cfg.DataPaths.ArchiveDir)
	gitRepoPath := getEnv("OBSERVATORIO_GIT_REPO", cfg.DataPaths.GitRepo)

	storageConfig := cfg.Storage
	storageConfig.PrimaryBackend = getEnv("PRIMARY_BACKEND", storageConfig.PrimaryBackend)
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		storageConfig.EnableMongoMirror = true
		storageConfig.MongoURI = uri
		storageConfig.MongoDatabase = getEnv("MONGO_DATABASE", "observatorio")
	}

	metricsCollector := storage.NewSimpleMetricsCollector()
	hybridStorage, err := storage.NewHybridStorage(dataRoot, gitRepoPath, storageConfig, metricsCollector)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize hybrid storage")
	}
	defer hybridStorage.Close()

	// Document lifecycle events feed the progress and failure logs; the
	// stats endpoint exposes bus counters alongside storage stats.
	eventBus := pipeline.NewEventBus(256, 2)
	defer eventBus.Close()
	hybridStorage.SetEventBus(eventBus)
	wireEventSubscribers(eventBus)

	// One fetcher per process so rate limiting and robots caching are
	// global. "ingest" covers API-submitted URLs on arbitrary hosts.
	limiter := ratelimit.NewSourceRateLimiter()
	limiter.Register("ingest", 2*time.Second)
	fetcher, err := harvest.NewFetcher(cfg.Harvest.FetcherConfig(), limiter, harvest.NewCompliance(nil))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build fetcher")
	}

	redactor, err := placenames.New(placenames.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build redactor")
	}

	activities.SetGlobalStorage(hybridStorage, metricsCollector)
	activities.SetGlobalFetcher(fetcher)
	activities.SetGlobalCleaner(processing.NewContentCleaner(redactor))
	activities.SetGlobalPreprocessor(nlp.NewPreprocessor(nlp.DefaultConfig()))

	// News sources keep listing positions under the state dir so the
	// scheduled harvests resume instead of re-listing from scratch.
	checkpoints, err := storage.NewCheckpoints(getEnv("OBSERVATORIO_STATE", cfg.DataPaths.StateDir))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open checkpoint store")
	}
	outlets := strings.Split(getEnv("NEWS_OUTLETS", strings.Join(cfg.Harvest.Outlets, ",")), ",")
	sources, err := news.BuildSources(outlets, fetcher, checkpoints)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build news sources")
	}

	gazette := gaceta.NewHarvester(fetcher, hybridStorage, extractor.NewEngine(), nil, nil)

	w := worker.New(temporalClient, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(workflows.PublicationIngestionWorkflow)
	w.RegisterWorkflow(workflows.FileIngestionWorkflow)
	w.RegisterWorkflow(workflows.ScheduledHarvestWorkflow)
	w.RegisterWorkflow(workflows.BatchIngestionWorkflow)

	w.RegisterActivity(activities.FetchPublicationActivity)
	w.RegisterActivity(activities.ExtractTextActivity)
	w.RegisterActivity(activities.CleanContentActivity)
	w.RegisterActivity(activities.PreprocessTextActivity)
	w.RegisterActivity(activities.StorePublicationActivity)
	w.RegisterActivity(activities.IndexPublicationActivity)
	w.RegisterActivity(activities.MergeIngestBranchActivity)
	w.RegisterActivity(activities.CheckDuplicateActivity)

	collector := activities.NewCollectorActivities(sources)
	w.RegisterActivity(collector.CollectNewsActivity)
	w.RegisterActivity(collector.SaveHarvestProgressActivity)

	gazetteActivities := activities.NewGazetteActivities(gazette)
	w.RegisterActivity(gazetteActivities.HarvestGazetteActivity)

	go func() {
		if err := w.Run(worker.InterruptCh()); err != nil {
			log.Fatal().Err(err).Msg("Worker stopped")
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:               "Observatorio Legislativo API",
		DisableStartupMessage: false,
		EnablePrintRoutes:     false,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: getEnv("CORS_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	h := api.NewHandlers(temporalClient, hybridStorage, taskQueue)
	storageHandler := api.NewStorageHandler(hybridStorage, metricsCollector)
	api.RegisterRoutes(app, h, storageHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := fmt.Sprintf("%s:%s",
		getEnv("HOST", cfg.Server.Host),
		getEnv("PORT", strconv.Itoa(cfg.Server.Port)))
	log.Info().Str("addr", addr).Str("task_queue", taskQueue).Msg("Starting control API")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// wireEventSubscribers attaches the process-level event consumers. The
// file backend refreshes its index on write, so the indexed event only
// needs a progress line; failures get their own logger so operators can
// filter on it.
func wireEventSubscribers(bus *pipeline.EventBus) {
	progress := logging.GetLogger("harvest-progress")
	_, err := bus.Subscribe([]pipeline.EventType{
		pipeline.EventDocumentStored,
		pipeline.EventDocumentIndexed,
	}, func(ctx context.Context, event *pipeline.DocumentEvent) error {
		outlet := ""
		id := ""
		if event.Document != nil {
			outlet = event.Document.Source.Outlet
			id = event.Document.ID
		}
		progress.Info().
			Str("event", string(event.Type)).
			Str("outlet", outlet).
			Str("document_id", id).
			Msg("Document progressed")
		return nil
	}, 64)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe progress logger")
	}

	failures := logging.GetLogger("pipeline-failures")
	_, err = bus.Subscribe([]pipeline.EventType{
		pipeline.EventProcessingFailed,
	}, func(ctx context.Context, event *pipeline.DocumentEvent) error {
		id := ""
		if event.Document != nil {
			id = event.Document.ID
		}
		failures.Warn().
			Str("document_id", id).
			Str("error", event.Error).
			Msg("Pipeline step failed")
		return nil
	}, 16)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe failure logger")
	}
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
