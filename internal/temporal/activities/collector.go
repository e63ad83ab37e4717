package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/civiclab-mx/observatorio/internal/harvest/news"
	"github.com/civiclab-mx/observatorio/internal/temporal/workflows"
	"github.com/civiclab-mx/observatorio/pkg/document"
)

// CollectorActivities lists news outlets for the scheduled harvest
// workflow. The sources keep their own listing positions; SaveProgress is
// a separate activity so the workflow can hold it back until every
// covered publication is stored.
type CollectorActivities struct {
	sources map[string]news.Source
}

// NewCollectorActivities wraps the given outlet sources. The sources are
// usually built with news.BuildSources from the configured outlet keys.
func NewCollectorActivities(sources []news.Source) *CollectorActivities {
	byName := make(map[string]news.Source, len(sources))
	for _, src := range sources {
		byName[src.Name()] = src
	}
	return &CollectorActivities{sources: byName}
}

// CollectNewsActivity lists one outlet's articles inside the window and
// returns them as ingestion candidates. Bodies are not fetched here; the
// ingestion child workflows fetch and extract each page themselves.
func (c *CollectorActivities) CollectNewsActivity(ctx context.Context, input workflows.NewsCollectInput) ([]workflows.CollectedPublication, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Collecting outlet listing", "outlet", input.Outlet, "from", input.From, "to", input.To)

	src, ok := c.sources[input.Outlet]
	if !ok {
		return nil, fmt.Errorf("unknown outlet %q", input.Outlet)
	}

	articles, err := src.List(ctx, input.From, input.To)
	if err != nil {
		if len(articles) == 0 {
			return nil, fmt.Errorf("failed to list %s: %w", input.Outlet, err)
		}
		// Partial listings are still worth ingesting; the next cycle
		// re-lists because progress is not saved after a failed one.
		logger.Warn("Listing finished with errors, keeping partial results", "outlet", input.Outlet, "error", err)
	}

	collected := make([]workflows.CollectedPublication, 0, len(articles))
	for _, a := range articles {
		if a.PublishedAt.IsZero() {
			logger.Warn("Dropping undated article", "outlet", input.Outlet, "url", a.URL)
			continue
		}

		id := a.ID
		if id == "" {
			id = document.NewID(a.URL)
		}
		pub := workflows.CollectedPublication{
			ID:          id,
			URL:         a.URL,
			Type:        "html",
			PublishedAt: a.PublishedAt,
			Metadata: map[string]string{
				"title":   a.Title,
				"section": a.Section,
			},
		}
		if a.Summary != "" {
			pub.Metadata["summary"] = a.Summary
		}
		collected = append(collected, pub)
	}

	logger.Info("Outlet listing collected", "outlet", input.Outlet, "listed", len(articles), "collected", len(collected))
	return collected, nil
}

// SaveHarvestProgressActivity persists the outlet's listing position.
// Sources without one (pure window listers) are a no-op.
func (c *CollectorActivities) SaveHarvestProgressActivity(ctx context.Context, outlet string) error {
	logger := activity.GetLogger(ctx)

	src, ok := c.sources[outlet]
	if !ok {
		return fmt.Errorf("unknown outlet %q", outlet)
	}
	saver, ok := src.(news.ProgressSaver)
	if !ok {
		return nil
	}

	if err := saver.SaveProgress(); err != nil {
		return fmt.Errorf("failed to save %s progress: %w", outlet, err)
	}
	logger.Info("Harvest progress saved", "outlet", outlet)
	return nil
}
