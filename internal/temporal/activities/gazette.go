package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/civiclab-mx/observatorio/internal/harvest/gaceta"
	"github.com/civiclab-mx/observatorio/internal/temporal/workflows"
)

// GazetteActivities runs the legislative gazette harvester. The harvest
// is one activity rather than per-publication child workflows because
// gazette documents are attachments found by walking listing pages and
// publication pages; the harvester owns that traversal end to end.
type GazetteActivities struct {
	harvester *gaceta.Harvester
}

func NewGazetteActivities(harvester *gaceta.Harvester) *GazetteActivities {
	return &GazetteActivities{harvester: harvester}
}

func (g *GazetteActivities) HarvestGazetteActivity(ctx context.Context, input workflows.GazetteHarvestInput) (*gaceta.Stats, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Harvesting gazette", "from", input.From, "to", input.To)

	if g.harvester == nil {
		return nil, fmt.Errorf("gazette harvester not configured")
	}

	stats, err := g.harvester.Harvest(ctx, input.From, input.To)
	if err != nil {
		return stats, fmt.Errorf("gazette harvest failed: %w", err)
	}

	logger.Info("Gazette harvest finished",
		"pages", stats.PagesProcessed,
		"seen", stats.PublicationsSeen,
		"stored", stats.PublicationsStored,
		"failures", stats.Failures)
	return stats, nil
}
