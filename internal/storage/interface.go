package storage

import (
	"context"

	"github.com/civiclab-mx/observatorio/pkg/document"
)

// StorageBackend defines the interface for document storage implementations
type StorageBackend interface {
	StoreDocument(ctx context.Context, doc *document.Document) (string, error)
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, filters map[string]string) ([]*document.Document, error)
	Exists(ctx context.Context, id string) (bool, error)
	MergeBranch(ctx context.Context, branchName string) error
	Health(ctx context.Context) error
	Close() error
}

// BatchStorer is implemented by backends that can write many documents
// in one round trip.
type BatchStorer interface {
	StoreDocuments(ctx context.Context, docs []*document.Document) (int, error)
}

// StorageMetrics provides telemetry for storage operations
type StorageMetrics struct {
	OperationType string
	Duration      int64 // nanoseconds
	Success       bool
	Backend       string
	Error         error
}

// MetricsCollector receives storage operation metrics
type MetricsCollector interface {
	RecordMetric(metric StorageMetrics)
}
