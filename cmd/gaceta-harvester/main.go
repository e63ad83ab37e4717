// Package main harvests the senate gazette listings straight into the
// archive, without Temporal. Used for backfills and for checking the
// selectors after a site redesign.
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
	"github.com/civiclab-mx/observatorio/internal/harvest/gaceta"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/config"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
	"github.com/civiclab-mx/observatorio/pkg/logging"
	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

func main() {
	cfg := config.Default()

	var (
		legislature = flag.Int("legislature", 0, "harvest one legislature's full window (64 or 65)")
		fromFlag    = flag.String("from", "", "window start, YYYY-MM-DD (overrides -legislature)")
		toFlag      = flag.String("to", "", "window end, YYYY-MM-DD")
		types       = flag.String("types", "", "comma-separated publication types (default: iniciativas,proposiciones)")
		dataRoot    = flag.String("data", cfg.DataPaths.ArchiveDir, "primary document tree")
		gitRepo     = flag.String("git", cfg.DataPaths.GitRepo, "git archive repository")
		errorDir    = flag.String("errors", cfg.DataPaths.ErrorDir, "directory for unparseable page dumps (empty disables capture)")
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

	gazetteConfig := gaceta.DefaultConfig()
	if *types != "" {
		gazetteConfig.Types = strings.Split(*types, ",")
	}

	from, to, err := resolveWindow(gazetteConfig, *legislature, *fromFlag, *toFlag)
	if err != nil {
		flag.Usage()
		log.Fatal().Err(err).Msg("Invalid harvest window")
	}

	metrics := storage.NewSimpleMetricsCollector()
	store, err := storage.NewHybridStorage(*dataRoot, *gitRepo, cfg.Storage, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	fetcher, err := harvest.NewFetcher(cfg.Harvest.FetcherConfig(), ratelimit.NewSourceRateLimiter(), harvest.NewCompliance(nil))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build fetcher")
	}

	var capture *harvest.ErrorCapture
	if *errorDir != "" {
		capture, err = harvest.NewErrorCapture(*errorDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open error capture directory")
		}
	}

	harvester := gaceta.NewHarvester(fetcher, store, extractor.NewEngine(), capture, gazetteConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Time("from", from).
		Time("to", to).
		Strs("types", gazetteConfig.Types).
		Msg("Starting gazette harvest")

	start := time.Now()
	stats, runErr := harvester.Harvest(ctx, from, to)
	if stats != nil {
		log.Info().
			Int("pages", stats.PagesProcessed).
			Int("seen", stats.PublicationsSeen).
			Int("stored", stats.PublicationsStored).
			Int("skipped", stats.PublicationsSkipped).
			Int("failures", stats.Failures).
			Dur("elapsed", time.Since(start)).
			Msg("Gazette harvest finished")
	}
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("Gazette harvest aborted")
	}
}

// resolveWindow turns the flags into a concrete [from, to] range. An
// explicit range wins over -legislature; having neither is an error so
// a bare invocation cannot start a full-history crawl.
func resolveWindow(gazette *gaceta.Config, legislature int, fromFlag, toFlag string) (time.Time, time.Time, error) {
	if fromFlag != "" || toFlag != "" {
		if fromFlag == "" || toFlag == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("-from and -to must be given together")
		}
		from, err := time.Parse("2006-01-02", fromFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from date: %w", err)
		}
		to, err := time.Parse("2006-01-02", toFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to date: %w", err)
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("-to is before -from")
		}
		return from, to, nil
	}

	if legislature == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("either -legislature or -from/-to is required")
	}
	for _, window := range gazette.Legislatures {
		if window.Number == legislature {
			return window.Start, window.End, nil
		}
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown legislature %d", legislature)
}
