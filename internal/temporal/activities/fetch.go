package activities

import (
	"context"
	"fmt"
	"net/http"

	"go.temporal.io/sdk/activity"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/temporal/workflows"
)

// Global fetcher shared by all fetch activities so rate limiting and
// robots state stay process-wide. Set from the worker main.
var globalFetcher *harvest.Fetcher

// SetGlobalFetcher installs the fetcher used by FetchPublicationActivity.
func SetGlobalFetcher(fetcher *harvest.Fetcher) {
	globalFetcher = fetcher
}

func FetchPublicationActivity(ctx context.Context, input workflows.FetchInput) (workflows.FetchResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Fetching publication", "url", input.URL, "source", input.Source)

	if globalFetcher == nil {
		return workflows.FetchResult{}, fmt.Errorf("fetcher not initialized")
	}

	source := input.Source
	if source == "" {
		source = "ingest"
	}

	result, err := globalFetcher.Fetch(ctx, source, input.URL)
	if err != nil {
		return workflows.FetchResult{}, fmt.Errorf("failed to fetch %s: %w", input.URL, err)
	}
	if result.StatusCode != http.StatusOK {
		return workflows.FetchResult{}, fmt.Errorf("fetch of %s returned status %d", input.URL, result.StatusCode)
	}

	logger.Info("Publication fetched", "url", input.URL, "size", len(result.Body), "contentType", result.ContentType)
	return workflows.FetchResult{
		Content:     result.Body,
		ContentType: result.ContentType,
		FinalURL:    result.FinalURL,
	}, nil
}
