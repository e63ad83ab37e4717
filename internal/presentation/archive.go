package presentation

import (
	"context"

	"github.com/civiclab-mx/observatorio/pkg/document"
)

// Archive is the read side of the document store the browser serves
// from. *storage.HybridStorage satisfies it; tests use a map-backed
// fake.
type Archive interface {
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	ListDocuments(ctx context.Context, filters map[string]string) ([]*document.Document, error)
	GetStats() map[string]interface{}
	Health(ctx context.Context) error
}
