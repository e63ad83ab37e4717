package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/civiclab-mx/observatorio/internal/processing"
	"github.com/civiclab-mx/observatorio/internal/temporal/workflows"
	"github.com/civiclab-mx/observatorio/pkg/document"
)

// Global cleaner shared by clean activities. The rule set is configured
// once at worker startup; the cleaner itself is safe for concurrent use
// after that.
var globalCleaner *processing.ContentCleaner

// SetGlobalCleaner installs the cleaner used by CleanContentActivity.
func SetGlobalCleaner(cleaner *processing.ContentCleaner) {
	globalCleaner = cleaner
}

func CleanContentActivity(ctx context.Context, input workflows.CleanInput) (workflows.CleanResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Cleaning content", "textLength", len(input.Text))

	if globalCleaner == nil {
		return workflows.CleanResult{}, fmt.Errorf("content cleaner not initialized")
	}

	doc := &document.Document{
		Content: document.Content{
			Text:     input.Text,
			Metadata: input.Metadata,
		},
	}
	result, err := globalCleaner.CleanDocument(ctx, doc)
	if err != nil {
		return workflows.CleanResult{}, fmt.Errorf("failed to clean content: %w", err)
	}

	logger.Info("Content cleaned", "bytesRemoved", result.BytesRemoved, "redacted", result.Redacted)
	return workflows.CleanResult{
		Text:         doc.Content.Text,
		Redacted:     doc.Content.Redacted,
		Metadata:     doc.Content.Metadata,
		RulesApplied: result.RulesApplied,
	}, nil
}
