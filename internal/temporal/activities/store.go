package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/internal/temporal/workflows"
	"github.com/civiclab-mx/observatorio/pkg/document"
)

// Global storage shared by the storage-touching activities. Set from the
// worker main before the worker starts polling.
var (
	globalStorage *storage.HybridStorage
	globalMetrics *storage.SimpleMetricsCollector
)

// SetGlobalStorage installs the storage used by the store, index, merge
// and duplicate-check activities.
func SetGlobalStorage(hybrid *storage.HybridStorage, metrics *storage.SimpleMetricsCollector) {
	globalStorage = hybrid
	globalMetrics = metrics
}

func StorePublicationActivity(ctx context.Context, input workflows.StoreInput) (workflows.StoreResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Storing publication", "url", input.URL, "type", input.Type, "source", input.Source)

	if globalStorage == nil {
		return workflows.StoreResult{}, fmt.Errorf("storage not initialized")
	}

	id := input.ID
	if id == "" {
		switch {
		case input.URL != "":
			id = document.NewID(input.URL)
		case input.Path != "":
			id = document.NewID(input.Path)
		default:
			return workflows.StoreResult{}, fmt.Errorf("store input needs a URL or a path")
		}
	}

	now := time.Now().UTC()
	doc := &document.Document{
		ID: id,
		Source: document.Source{
			Type:   input.Type,
			Outlet: input.Source,
			URL:    input.URL,
			Path:   input.Path,
		},
		Content: document.Content{
			Raw:      input.Content,
			Text:     input.Text,
			Redacted: input.Redacted,
			Tokens:   input.Tokens,
			Metadata: input.Metadata,
		},
		PublishedAt: input.PublishedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ref, err := globalStorage.StoreDocument(ctx, doc)
	if err != nil {
		return workflows.StoreResult{}, fmt.Errorf("failed to store publication: %w", err)
	}

	logger.Info("Publication stored", "documentID", doc.ID, "ref", ref)
	return workflows.StoreResult{DocumentID: doc.ID, Ref: ref}, nil
}

// CheckDuplicateActivity reports whether a document is already archived.
// The probe covers the primary backend and the git archive, so a crash
// between store and checkpoint save cannot re-ingest forever.
func CheckDuplicateActivity(ctx context.Context, documentID string) (bool, error) {
	if globalStorage == nil {
		return false, fmt.Errorf("storage not initialized")
	}

	exists, err := globalStorage.Exists(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("failed to probe document %s: %w", documentID, err)
	}
	return exists, nil
}
