// Package main runs the news outlet sources over a date window and
// stores the articles, without Temporal. Listing positions are
// checkpointed, so a daily cron invocation only picks up new articles.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/harvest/news"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/config"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
	"github.com/civiclab-mx/observatorio/pkg/logging"
	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

func main() {
	cfg := config.Default()

	var (
		outletsFlag = flag.String("outlets", strings.Join(cfg.Harvest.Outlets, ","), "comma-separated outlets to collect")
		days        = flag.Int("days", 7, "lookback window in days, ending now")
		fromFlag    = flag.String("from", "", "window start, YYYY-MM-DD (overrides -days)")
		toFlag      = flag.String("to", "", "window end, YYYY-MM-DD (defaults to today)")
		dataRoot    = flag.String("data", cfg.DataPaths.ArchiveDir, "primary document tree")
		gitRepo     = flag.String("git", cfg.DataPaths.GitRepo, "git archive repository")
		stateDir    = flag.String("state", cfg.DataPaths.StateDir, "checkpoint directory")
		workers     = flag.Int("workers", cfg.Harvest.MaxConcurrentFetches, "parallel article fetch workers")
		logLevel    = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	logConfig := logging.DefaultLogConfig()
	logConfig.Level = *logLevel
	logConfig.Format = "pretty"
	logConfig.OutputFile = ""
	if err := logging.SetupLogger(logConfig); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	from, to, err := resolveWindow(*days, *fromFlag, *toFlag)
	if err != nil {
		flag.Usage()
		log.Fatal().Err(err).Msg("Invalid collection window")
	}

	metrics := storage.NewSimpleMetricsCollector()
	store, err := storage.NewHybridStorage(*dataRoot, *gitRepo, cfg.Storage, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	checkpoints, err := storage.NewCheckpoints(*stateDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open checkpoint store")
	}

	articleLog, err := storage.NewArticleLog(*dataRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open article log")
	}

	fetcher, err := harvest.NewFetcher(cfg.Harvest.FetcherConfig(), ratelimit.NewSourceRateLimiter(), harvest.NewCompliance(nil))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build fetcher")
	}

	sources, err := news.BuildSources(strings.Split(*outletsFlag, ","), fetcher, checkpoints)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build news sources")
	}

	collectorConfig := news.DefaultCollectorConfig()
	if *workers > 0 {
		collectorConfig.Pool.Workers = *workers
	}

	collector, err := news.NewCollector(sources, fetcher, store, checkpoints, articleLog, extractor.NewEngine(), collectorConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build collector")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Time("from", from).
		Time("to", to).
		Str("outlets", *outletsFlag).
		Int("workers", collectorConfig.Pool.Workers).
		Msg("Starting news collection")

	start := time.Now()
	stats, runErr := collector.Run(ctx, from, to)

	listed, stored, failures := 0, 0, 0
	for _, st := range stats {
		listed += st.ArticlesListed
		stored += st.ArticlesStored
		failures += st.BodyFailures + st.StoreFailures
	}
	log.Info().
		Int("outlets", len(stats)).
		Int("listed", listed).
		Int("stored", stored).
		Int("failures", failures).
		Dur("elapsed", time.Since(start)).
		Msg("News collection finished")

	if runErr != nil {
		log.Fatal().Err(runErr).Msg("News collection aborted")
	}
}

// resolveWindow turns the flags into a concrete [from, to] range. The
// default is a short trailing window because the checkpoints already
// carry each outlet's position; -from/-to exist for backfills.
func resolveWindow(days int, fromFlag, toFlag string) (time.Time, time.Time, error) {
	now := time.Now().UTC()

	if fromFlag == "" && toFlag == "" {
		return now.AddDate(0, 0, -days), now, nil
	}

	from, err := time.Parse("2006-01-02", fromFlag)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -from date: %w", err)
	}
	to := now
	if toFlag != "" {
		to, err = time.Parse("2006-01-02", toFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to date: %w", err)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to is before -from")
	}
	return from, to, nil
}
