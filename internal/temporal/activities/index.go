package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/civiclab-mx/observatorio/internal/pipeline"
)

// IndexPublicationActivity confirms the stored document is retrievable
// and announces it on the event bus. The file backend maintains its
// in-memory index on write; subscribers (search views, progress logging)
// refresh from the indexed event.
func IndexPublicationActivity(ctx context.Context, documentID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Indexing publication", "documentID", documentID)

	if globalStorage == nil {
		return fmt.Errorf("storage not initialized")
	}

	doc, err := globalStorage.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("stored document not retrievable: %w", err)
	}

	if bus := globalStorage.GetEventBus(); bus != nil {
		if err := bus.Publish(pipeline.NewDocumentEvent(pipeline.EventDocumentIndexed, doc)); err != nil {
			logger.Warn("Failed to publish indexed event", "documentID", documentID, "error", err)
		}
	}

	logger.Info("Publication indexed", "documentID", documentID)
	return nil
}
