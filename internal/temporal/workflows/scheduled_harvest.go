package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/civiclab-mx/observatorio/internal/harvest/gaceta"
)

// GazetteSource is the source key for the legislative gazette. Every other
// source key names a news outlet.
const GazetteSource = "gaceta"

// HarvestScheduleInput configures one recurring harvest.
type HarvestScheduleInput struct {
	// Source is "gaceta" or an outlet key (jornada, proceso, ...).
	Source string `json:"source"`
	// Lookback is the listing window ending at the cycle start.
	Lookback time.Duration `json:"lookback"`
	// Interval is the pause between cycles. Zero means run once and
	// return, for schedules driven by workflow cron options instead.
	Interval time.Duration `json:"interval"`
	// MaxRuns caps the cycles per workflow run before continue-as-new
	// truncates the history.
	MaxRuns  int               `json:"max_runs"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CollectedPublication is one listing entry reported by a collect
// activity, enough to start an ingestion child workflow.
type CollectedPublication struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Type        string            `json:"type"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewsCollectInput asks the collect activity for one outlet's listings
// inside a window.
type NewsCollectInput struct {
	Outlet string    `json:"outlet"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// GazetteHarvestInput bounds a gazette harvest by session date.
type GazetteHarvestInput struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ScheduledHarvestWorkflow harvests one source on a cadence. News outlets
// go through collect → duplicate check → child ingestion workflows; the
// gazette runs as a single self-contained activity because its documents
// are attachments discovered two pages deep. The workflow continues-as-new
// after MaxRuns cycles.
func ScheduledHarvestWorkflow(ctx workflow.Context, input HarvestScheduleInput) error {
	logger := workflow.GetLogger(ctx)
	if input.Source == "" {
		return fmt.Errorf("harvest schedule needs a source")
	}
	if input.Lookback <= 0 {
		input.Lookback = 48 * time.Hour
	}
	maxRuns := input.MaxRuns
	if maxRuns <= 0 {
		maxRuns = 24
	}

	logger.Info("Starting scheduled harvest", "source", input.Source, "lookback", input.Lookback, "interval", input.Interval)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	for run := 0; run < maxRuns; run++ {
		to := workflow.Now(ctx)
		from := to.Add(-input.Lookback)

		if input.Source == GazetteSource {
			var stats gaceta.Stats
			if err := workflow.ExecuteActivity(ctx, HarvestGazetteActivityName, GazetteHarvestInput{From: from, To: to}).Get(ctx, &stats); err != nil {
				logger.Error("Gazette harvest failed", "error", err)
			} else {
				logger.Info("Gazette harvest finished",
					"pages", stats.PagesProcessed,
					"stored", stats.PublicationsStored,
					"failures", stats.Failures)
			}
		} else if err := harvestOutlet(ctx, input, from, to); err != nil {
			logger.Error("Outlet harvest failed", "outlet", input.Source, "error", err)
		}

		if input.Interval <= 0 {
			return nil
		}
		if err := workflow.Sleep(ctx, input.Interval); err != nil {
			return err
		}
	}

	return workflow.NewContinueAsNewError(ctx, ScheduledHarvestWorkflow, input)
}

// harvestOutlet runs one collect → dedup → ingest cycle for a news outlet.
func harvestOutlet(ctx workflow.Context, input HarvestScheduleInput, from, to time.Time) error {
	logger := workflow.GetLogger(ctx)

	var collected []CollectedPublication
	if err := workflow.ExecuteActivity(ctx, CollectNewsActivityName, NewsCollectInput{
		Outlet: input.Source,
		From:   from,
		To:     to,
	}).Get(ctx, &collected); err != nil {
		return err
	}
	logger.Info("Collected publications", "outlet", input.Source, "count", len(collected))

	var futures []workflow.Future
	skipped := 0
	for _, pub := range collected {
		var isDuplicate bool
		if err := workflow.ExecuteActivity(ctx, CheckDuplicateActivityName, pub.ID).Get(ctx, &isDuplicate); err == nil && isDuplicate {
			skipped++
			continue
		}

		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: "ingest-" + pub.ID,
		})
		futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, PublicationIngestionWorkflow, PublicationInput{
			ID:          pub.ID,
			URL:         pub.URL,
			Type:        pub.Type,
			Source:      input.Source,
			PublishedAt: pub.PublishedAt,
			Metadata:    mergeMetadata(input.Metadata, pub.Metadata),
		}))
	}

	failures := 0
	for _, future := range futures {
		if err := future.Get(ctx, nil); err != nil {
			failures++
			logger.Error("Publication ingestion failed", "outlet", input.Source, "error", err)
		}
	}

	// Listing positions advance only once every covered publication is
	// stored; a failed cycle re-lists instead of skipping.
	if failures == 0 && len(collected) > 0 {
		if err := workflow.ExecuteActivity(ctx, SaveHarvestProgressActivityName, input.Source).Get(ctx, nil); err != nil {
			logger.Warn("Failed to save harvest progress", "outlet", input.Source, "error", err)
		}
	}

	logger.Info("Outlet harvest finished",
		"outlet", input.Source,
		"ingested", len(futures)-failures,
		"duplicates", skipped,
		"failed", failures)
	return nil
}

// BatchIngestionWorkflow ingests a set of publications with bounded
// child-workflow concurrency.
func BatchIngestionWorkflow(ctx workflow.Context, documents []PublicationInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch ingestion", "count", len(documents))

	const maxConcurrent = 5
	sem := workflow.NewBufferedChannel(ctx, maxConcurrent)
	pending := 0
	failures := 0

	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID
	for i := range documents {
		doc := documents[i]
		sem.Send(ctx, nil)

		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("%s-ingest-%d", parentID, i),
		})
		future := workflow.ExecuteChildWorkflow(childCtx, PublicationIngestionWorkflow, doc)

		pending++
		workflow.Go(ctx, func(gctx workflow.Context) {
			if err := future.Get(gctx, nil); err != nil {
				failures++
				logger.Error("Batch ingestion child failed", "url", doc.URL, "error", err)
			}
			pending--
			sem.Receive(gctx, nil)
		})
	}

	if err := workflow.Await(ctx, func() bool { return pending == 0 }); err != nil {
		return err
	}

	if failures > 0 {
		logger.Error("Batch ingestion completed with errors", "failures", failures)
		return fmt.Errorf("batch ingestion had %d failures", failures)
	}
	logger.Info("Batch ingestion completed", "count", len(documents))
	return nil
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
