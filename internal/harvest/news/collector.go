package news

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
)

// CollectorConfig configures the news collection run.
type CollectorConfig struct {
	Pool *harvest.PoolConfig `json:"pool"`
	// KeepFailed stores articles whose body could not be fetched or
	// parsed, with the error recorded in their metadata.
	KeepFailed bool `json:"keep_failed"`
}

func DefaultCollectorConfig() *CollectorConfig {
	return &CollectorConfig{
		Pool:       harvest.DefaultPoolConfig(),
		KeepFailed: true,
	}
}

// SourceStats summarizes one outlet's collection run.
type SourceStats struct {
	ArticlesListed  int    `json:"articles_listed"`
	ArticlesStored  int    `json:"articles_stored"`
	ArticlesSkipped int    `json:"articles_skipped"`
	BodyFailures    int    `json:"body_failures"`
	StoreFailures   int    `json:"store_failures"`
	ListError       string `json:"list_error,omitempty"`
}

// Collector runs the outlet sources, fetches article bodies through a
// bounded pool, and persists the results: one archive document per
// article, a monthly JSON log per outlet, and the processed-id sets that
// make reruns incremental.
type Collector struct {
	sources     []Source
	fetcher     *harvest.Fetcher
	store       storage.StorageBackend
	checkpoints *storage.Checkpoints
	articleLog  *storage.ArticleLog
	extractor   *extractor.Engine
	config      *CollectorConfig

	statsMu   sync.RWMutex
	lastStats map[string]*SourceStats
}

func NewCollector(
	sources []Source,
	fetcher *harvest.Fetcher,
	store storage.StorageBackend,
	checkpoints *storage.Checkpoints,
	articleLog *storage.ArticleLog,
	engine *extractor.Engine,
	config *CollectorConfig,
) (*Collector, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("collector requires at least one source")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("collector requires a fetcher")
	}
	if store == nil {
		return nil, fmt.Errorf("collector requires a storage backend")
	}
	if config == nil {
		config = DefaultCollectorConfig()
	}
	return &Collector{
		sources:     sources,
		fetcher:     fetcher,
		store:       store,
		checkpoints: checkpoints,
		articleLog:  articleLog,
		extractor:   engine,
		config:      config,
		lastStats:   make(map[string]*SourceStats),
	}, nil
}

// Run collects every source over the window and returns per-outlet stats.
// A source failure does not stop the others; only context cancellation
// aborts the run.
func (c *Collector) Run(ctx context.Context, from, to time.Time) (map[string]*SourceStats, error) {
	pool := harvest.NewFetchPool(c.fetcher, c.config.Pool)
	pool.Start(ctx)
	defer pool.Stop()

	stats := make(map[string]*SourceStats)
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		st := c.collect(ctx, src, from, to, pool)
		stats[src.Name()] = st
		log.Info().
			Str("outlet", src.Name()).
			Int("listed", st.ArticlesListed).
			Int("stored", st.ArticlesStored).
			Int("skipped", st.ArticlesSkipped).
			Int("body_failures", st.BodyFailures).
			Msg("Outlet collection finished")
	}

	c.statsMu.Lock()
	c.lastStats = stats
	c.statsMu.Unlock()
	return stats, nil
}

// LastStats returns the stats of the most recent run.
func (c *Collector) LastStats() map[string]*SourceStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	out := make(map[string]*SourceStats, len(c.lastStats))
	for k, v := range c.lastStats {
		copied := *v
		out[k] = &copied
	}
	return out
}

func (c *Collector) collect(ctx context.Context, src Source, from, to time.Time, pool *harvest.FetchPool) *SourceStats {
	st := &SourceStats{}
	outlet := src.Name()

	articles, listErr := src.List(ctx, from, to)
	if listErr != nil {
		log.Error().Err(listErr).Str("outlet", outlet).Msg("Listing failed, keeping partial results")
		st.ListError = listErr.Error()
	}
	st.ArticlesListed = len(articles)

	ids := make(map[string]bool)
	if c.checkpoints != nil {
		loaded, err := c.checkpoints.ProcessedIDs(outlet, "articles")
		if err != nil {
			log.Warn().Err(err).Str("outlet", outlet).Msg("Failed to load processed ids")
		} else {
			ids = loaded
		}
	}

	fresh := make([]Article, 0, len(articles))
	for _, a := range articles {
		if ids[a.ID] {
			st.ArticlesSkipped++
			continue
		}
		fresh = append(fresh, a)
	}

	c.fillBodies(ctx, src, fresh, pool, st)

	stored := c.persist(ctx, src, fresh, from, to, ids, st)

	c.appendLog(outlet, stored)

	if c.checkpoints != nil && st.ArticlesStored > 0 {
		if err := c.checkpoints.SaveProcessedIDs(outlet, "articles", ids); err != nil {
			log.Error().Err(err).Str("outlet", outlet).Msg("Failed to save processed ids")
		}
	}
	// Listing progress only advances once everything it covered is on
	// disk; a store failure re-lists the window instead of skipping it.
	if ps, ok := src.(ProgressSaver); ok && st.StoreFailures == 0 {
		if err := ps.SaveProgress(); err != nil {
			log.Error().Err(err).Str("outlet", outlet).Msg("Failed to save listing progress")
		}
	}
	return st
}

// fillBodies downloads and parses the body of every article that does not
// carry one from listing. Failures are recorded on the article rather
// than aborting the batch.
func (c *Collector) fillBodies(ctx context.Context, src Source, articles []Article, pool *harvest.FetchPool, st *SourceStats) {
	parser, canParse := src.(ArticleParser)

	type pendingFetch struct {
		idx int
		job *harvest.FetchJob
	}
	var pending []pendingFetch
	for i := range articles {
		if articles[i].Body != "" || articles[i].Error != "" {
			continue
		}
		job := &harvest.FetchJob{Source: src.Name(), URL: articles[i].URL}
		if err := pool.Submit(ctx, job); err != nil {
			// Queue pressure: fetch inline instead of dropping the
			// article.
			job.Result, job.Err = c.fetcher.Fetch(ctx, src.Name(), articles[i].URL)
			c.finishBody(ctx, parser, canParse, &articles[i], job, st)
			continue
		}
		pending = append(pending, pendingFetch{idx: i, job: job})
	}

	for _, p := range pending {
		if err := p.job.Wait(ctx); err != nil && ctx.Err() != nil {
			// Mark everything still in flight as failed.
			articles[p.idx].Error = ctx.Err().Error()
			st.BodyFailures++
			continue
		}
		c.finishBody(ctx, parser, canParse, &articles[p.idx], p.job, st)
	}
}

func (c *Collector) finishBody(ctx context.Context, parser ArticleParser, canParse bool, article *Article, job *harvest.FetchJob, st *SourceStats) {
	if job.Err != nil {
		article.Error = job.Err.Error()
		st.BodyFailures++
		return
	}
	if job.Result.StatusCode != http.StatusOK {
		article.Error = fmt.Sprintf("status %d from %s", job.Result.StatusCode, article.URL)
		st.BodyFailures++
		return
	}
	if canParse {
		if err := parser.ParseArticle(job.Result.Body, article); err != nil {
			article.Error = err.Error()
			st.BodyFailures++
		}
		return
	}
	if c.extractor == nil {
		article.Error = "no article parser available"
		st.BodyFailures++
		return
	}
	text, _, err := c.extractor.Extract(ctx, job.Result.Body, "html")
	if err != nil {
		article.Error = err.Error()
		st.BodyFailures++
		return
	}
	article.Body = text
}

// persist stores articles as archive documents and returns the ones that
// were written. Articles whose date never resolved cannot be placed in
// the archive and are dropped.
func (c *Collector) persist(ctx context.Context, src Source, articles []Article, from, to time.Time, ids map[string]bool, st *SourceStats) []Article {
	outlet := src.Name()
	stored := make([]Article, 0, len(articles))
	for i := range articles {
		a := &articles[i]
		if a.Error != "" && !c.config.KeepFailed {
			continue
		}
		if a.PublishedAt.IsZero() {
			log.Warn().Str("outlet", outlet).Str("url", a.URL).Msg("Dropping article without date")
			st.StoreFailures++
			continue
		}
		if a.PublishedAt.Before(from) || a.PublishedAt.After(to) {
			st.ArticlesSkipped++
			continue
		}
		if _, err := c.store.StoreDocument(ctx, a.ToDocument()); err != nil {
			log.Error().Err(err).Str("outlet", outlet).Str("url", a.URL).Msg("Failed to store article")
			st.StoreFailures++
			continue
		}
		ids[a.ID] = true
		st.ArticlesStored++
		stored = append(stored, *a)
	}
	return stored
}

// appendLog groups stored articles into monthly outlet files.
func (c *Collector) appendLog(outlet string, stored []Article) {
	if c.articleLog == nil || len(stored) == 0 {
		return
	}
	groups := make(map[time.Time][]interface{})
	for _, a := range stored {
		month := time.Date(a.PublishedAt.Year(), a.PublishedAt.Month(), 1, 0, 0, 0, 0, time.UTC)
		groups[month] = append(groups[month], a)
	}
	for month, records := range groups {
		if _, err := c.articleLog.Append(outlet, month, records); err != nil {
			log.Error().Err(err).Str("outlet", outlet).Str("month", month.Format("2006-01")).Msg("Failed to append article log")
		}
	}
}
