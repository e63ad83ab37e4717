package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/civiclab-mx/observatorio/internal/temporal/workflows"
	"github.com/civiclab-mx/observatorio/pkg/extractor"
)

func ExtractTextActivity(ctx context.Context, input workflows.ExtractInput) (workflows.ExtractResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Extracting text", "type", input.Type, "contentSize", len(input.Content))

	engine := extractor.NewEngine()

	text, metadata, err := engine.Extract(ctx, input.Content, input.Type)
	if err != nil {
		// Unreadable content stays unreadable; retrying wastes attempts.
		var extractionErr *extractor.ExtractionError
		if errors.As(err, &extractionErr) {
			return workflows.ExtractResult{}, temporal.NewNonRetryableApplicationError("extraction failed", "ExtractionError", err)
		}
		return workflows.ExtractResult{}, fmt.Errorf("failed to extract text: %w", err)
	}

	logger.Info("Text extracted", "textLength", len(text), "metadataCount", len(metadata))
	return workflows.ExtractResult{
		Text:     text,
		Metadata: metadata,
	}, nil
}
